// Package theme provides the Lip Gloss color palette and reusable
// styles for the Collexa console. It is a leaf package with no
// internal imports to avoid import cycles.
package theme

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Run status colors.
var (
	ColorQueued    = lipgloss.Color("#7c3aed")
	ColorRunning   = lipgloss.Color("#2563eb")
	ColorSucceeded = lipgloss.Color("#16a34a")
	ColorFailed    = lipgloss.Color("#dc2626")
	ColorCanceled  = lipgloss.Color("#6b7280")
)

// Log level colors.
var (
	ColorDebug = lipgloss.Color("#6b7280")
	ColorInfo  = lipgloss.Color("#3b82f6")
	ColorWarn  = lipgloss.Color("#d97706")
	ColorError = lipgloss.Color("#dc2626")
)

// Model colors.
var (
	ColorClaude  = lipgloss.Color("#a855f7")
	ColorGPT     = lipgloss.Color("#10b981")
	ColorGemini  = lipgloss.Color("#4285f4")
	ColorDefault = lipgloss.Color("#9ca3af")
)

// Plan colors.
var (
	ColorFree       = lipgloss.Color("#9ca3af")
	ColorPro        = lipgloss.Color("#f59e0b")
	ColorScale      = lipgloss.Color("#06b6d4")
	ColorEnterprise = lipgloss.Color("#67e8f9")
)

// Usage meter thresholds.
var (
	ColorUsageLow  = lipgloss.Color("#22c55e") // <50%
	ColorUsageMid  = lipgloss.Color("#d97706") // 50-80%
	ColorUsageHigh = lipgloss.Color("#dc2626") // >80%
)

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorWarning = lipgloss.Color("#d97706")
	ColorDanger  = lipgloss.Color("#dc2626")
)

// StatusColor returns the Lip Gloss color for a run status.
func StatusColor(status string) lipgloss.Color {
	switch status {
	case "queued":
		return ColorQueued
	case "running":
		return ColorRunning
	case "succeeded":
		return ColorSucceeded
	case "failed":
		return ColorFailed
	case "canceled":
		return ColorCanceled
	default:
		return ColorDefault
	}
}

// StatusGlyph returns a Unicode glyph for a run status.
func StatusGlyph(status string) string {
	switch status {
	case "queued":
		return "◎"
	case "running":
		return "●>"
	case "succeeded":
		return "✓"
	case "failed":
		return "✗"
	case "canceled":
		return "○"
	default:
		return "·"
	}
}

// LevelColor returns the Lip Gloss color for a log level.
func LevelColor(level string) lipgloss.Color {
	switch level {
	case "debug":
		return ColorDebug
	case "info":
		return ColorInfo
	case "warn", "warning":
		return ColorWarn
	case "error":
		return ColorError
	default:
		return ColorDimmed
	}
}

// ModelColor returns the Lip Gloss color for a model name.
func ModelColor(model string) lipgloss.Color {
	switch {
	case strings.Contains(model, "claude"):
		return ColorClaude
	case strings.Contains(model, "gpt"):
		return ColorGPT
	case strings.Contains(model, "gemini"):
		return ColorGemini
	default:
		return ColorDefault
	}
}

// PlanColor returns the color for a billing plan name.
func PlanColor(plan string) lipgloss.Color {
	switch plan {
	case "free":
		return ColorFree
	case "pro":
		return ColorPro
	case "scale":
		return ColorScale
	case "enterprise":
		return ColorEnterprise
	default:
		return ColorDefault
	}
}

// UsageColor returns the color for a usage fraction.
func UsageColor(pct float64) lipgloss.Color {
	switch {
	case pct > 0.8:
		return ColorUsageHigh
	case pct > 0.5:
		return ColorUsageMid
	default:
		return ColorUsageLow
	}
}

// RoleBadge returns a colored badge string for a member role.
func RoleBadge(role string) string {
	switch role {
	case "owner":
		return lipgloss.NewStyle().Foreground(ColorPro).Render("[O]")
	case "admin":
		return lipgloss.NewStyle().Foreground(ColorScale).Render("[A]")
	case "member":
		return lipgloss.NewStyle().Foreground(ColorDimmed).Render("[M]")
	default:
		return lipgloss.NewStyle().Foreground(ColorDefault).Render("[?]")
	}
}

// Reusable styles.
var (
	StyleBorder = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder)

	StyleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
			Foreground(ColorDimmed)

	StyleSelected = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)
)
