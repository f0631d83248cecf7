package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/contriboss/extbuild-go"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

func outcomeStyle(outcome extbuild.Outcome) lipgloss.Style {
	if outcome == extbuild.OutcomeSucceeded {
		return okStyle
	}
	return warnStyle
}

func renderInstallReport(report *extbuild.InstallReport) string {
	header := titleStyle.Render(fmt.Sprintf("%s %s", report.Package, report.Version))
	lines := []string{
		fmt.Sprintf("  files:      %d", len(report.Files)),
		"  extensions: " + outcomeStyle(report.Outcome).Render(string(report.Outcome)),
	}

	if report.Extensions != nil {
		for _, name := range report.Extensions.BuiltNames() {
			lines = append(lines, okStyle.Render("    ✓ "+name))
		}
		for _, skipped := range report.Extensions.Skipped {
			lines = append(lines, warnStyle.Render("    ✗ "+skipped.Name))
		}
	}
	for _, source := range report.SkippedSources {
		lines = append(lines, warnStyle.Render("    ✗ source "+source))
	}

	if report.Fallback {
		lines = append(lines, warnStyle.Render(fmt.Sprintf("  installed without native extensions: %v", report.FallbackCause)))
	}
	if report.Manifest != "" {
		lines = append(lines, mutedStyle.Render("  manifest: "+report.Manifest))
	}

	return lipgloss.JoinVertical(lipgloss.Left, header, strings.Join(lines, "\n"))
}

func renderCollection(collection *extbuild.Collection, factory *extbuild.BuilderFactory, goos string) string {
	header := titleStyle.Render(fmt.Sprintf("%-40s │ %-8s │ %s", "EXTENSION", "BUILDER", "SOURCES"))

	var rows []string
	for i := range collection.Extensions {
		spec := &collection.Extensions[i]
		builder := "none"
		style := okStyle
		if b, err := factory.BuilderFor(spec); err == nil {
			builder = b.Name()
		} else {
			style = warnStyle
		}
		rows = append(rows, style.Render(fmt.Sprintf("%-40s │ %-8s │ %s", spec.Name, builder, strings.Join(spec.Sources, " "))))
	}
	if len(rows) == 0 {
		rows = append(rows, mutedStyle.Render(fmt.Sprintf("  no extensions for %s", goos)))
	}

	for _, source := range collection.Failed {
		rows = append(rows, warnStyle.Render("  failed source: "+source))
	}

	return lipgloss.JoinVertical(lipgloss.Left, header, strings.Join(rows, "\n"))
}
