package ui

import "github.com/charmbracelet/lipgloss"

// Colors used in the application.
var (
	colorPrimary   = lipgloss.Color("62")  // Purple
	colorSecondary = lipgloss.Color("241") // Gray
	colorHighlight = lipgloss.Color("212") // Pink
	colorSuccess   = lipgloss.Color("78")  // Green
	colorError     = lipgloss.Color("203") // Red
)

// TitleStyle for the header line.
var TitleStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorHighlight).
	Padding(0, 1)

// TrackingStyle for a healthy status line.
var TrackingStyle = lipgloss.NewStyle().
	Foreground(colorSuccess).
	Padding(0, 1)

// ErrorStyle for the status line while degraded.
var ErrorStyle = lipgloss.NewStyle().
	Foreground(colorError).
	Padding(0, 1)

// LabelStyle for field labels.
var LabelStyle = lipgloss.NewStyle().
	Foreground(colorSecondary).
	Padding(0, 1)

// ValueStyle for field values.
var ValueStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("255"))

// HistoryStyle for journal rows.
var HistoryStyle = lipgloss.NewStyle().
	Foreground(colorSecondary).
	Padding(0, 2)

// StatusBar style for the bottom key-hint bar.
var StatusBar = lipgloss.NewStyle().
	Foreground(lipgloss.Color("255")).
	Background(lipgloss.Color("236")).
	Padding(0, 1)

// BadgeStyle for the mode/lock badges.
var BadgeStyle = lipgloss.NewStyle().
	Foreground(colorPrimary).
	Background(lipgloss.Color("236")).
	Padding(0, 1).
	MarginRight(1)
