package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"github.com/jask/moneyimport/internal/database/repository"
	"github.com/jask/moneyimport/internal/dedup"
	"github.com/jask/moneyimport/internal/service"
	"github.com/jask/moneyimport/internal/statement"
)

const defaultWidth = 96

// RenderPreview draws what a confirmation of p would do.
func RenderPreview(p service.PreviewResult, width int) string {
	if width <= 0 {
		width = defaultWidth
	}
	var sections []string
	for _, f := range p.Files {
		sections = append(sections, renderSection(fileTitle(f), renderFilePreview(f, width-4), width))
	}
	sections = append(sections, renderAggregate(p.Aggregate))
	if len(p.Warnings) > 0 {
		sections = append(sections, renderWarnings(p.Warnings))
	}
	sections = append(sections, mutedStyle.Render("preview "+p.Handle+" expires "+p.ExpiresAt.Local().Format("15:04:05")))
	return strings.Join(sections, "\n")
}

func fileTitle(f service.FilePreview) string {
	title := titleStyle.Render(f.Filename)
	switch {
	case f.Error != "":
		return title + "  " + errorStyle.Render(string(f.Format))
	case f.Mapping != "":
		return title + "  " + infoStyle.Render(string(f.Format)+" ("+f.Mapping+")")
	}
	return title + "  " + infoStyle.Render(string(f.Format))
}

func renderFilePreview(f service.FilePreview, width int) string {
	if f.Error != "" {
		lines := []string{errorStyle.Render(f.Error)}
		if f.Hint != "" {
			lines = append(lines, labelStyle.Render("closest known layout: ")+valueStyle.Render(f.Hint))
		}
		return strings.Join(lines, "\n")
	}
	var lines []string
	lines = append(lines, kv("accounts", strings.Join(f.Accounts, ", ")))
	if f.Parsed > 0 {
		lines = append(lines, kv("dates", f.From.Format("2006-01-02")+" → "+f.To.Format("2006-01-02")))
	}
	lines = append(lines, kv("rows", fmt.Sprintf("%d parsed, %d new, %d already imported, %d repeated",
		f.Parsed, f.Counts.New, f.Counts.DuplicateExisting, f.Counts.DuplicateInBatch())))
	for _, e := range f.RowErrors {
		lines = append(lines, warnStyle.Render("  "+e.Error()))
	}
	if len(f.Samples) > 0 {
		lines = append(lines, "", renderSamples(f.Samples, width))
	}
	return strings.Join(lines, "\n")
}

func renderSamples(rows []service.SampleRow, width int) string {
	dateWidth, amountWidth, classWidth := 10, 11, 18
	descWidth := width - dateWidth - amountWidth - classWidth - 6
	if descWidth < 8 {
		descWidth = 8
	}
	header := fmt.Sprintf("%-*s  %-*s  %-*s  %s", dateWidth, "Date", amountWidth, "Amount", descWidth, "Description", "Status")
	lines := []string{tableHeaderStyle.Render(header)}
	for _, r := range rows {
		lines = append(lines, padRight(r.Date, dateWidth)+"  "+
			amountCell(r.Amount, amountWidth)+"  "+
			padRight(truncate(r.Description, descWidth), descWidth)+"  "+
			classCell(r.Class))
	}
	return strings.Join(lines, "\n")
}

func amountCell(d decimal.Decimal, width int) string {
	cell := padLeft(d.StringFixed(2), width)
	switch d.Sign() {
	case 1:
		return creditStyle.Render(cell)
	case -1:
		return debitStyle.Render(cell)
	}
	return cell
}

func classCell(c dedup.Class) string {
	switch c {
	case dedup.New:
		return creditStyle.Render("new")
	case dedup.DuplicateExisting:
		return mutedStyle.Render("already imported")
	}
	return mutedStyle.Render("repeated in batch")
}

func renderAggregate(a service.Aggregate) string {
	parts := []string{
		kv("new", fmt.Sprint(a.TotalNew)),
		kv("already imported", fmt.Sprint(a.TotalDuplicateExisting)),
		kv("repeated", fmt.Sprint(a.TotalDuplicateInBatch)),
		kv("other account", fmt.Sprint(a.TotalDuplicateCrossAccountWarning)),
	}
	line := strings.Join(parts, "   ")
	if a.TotalRowErrors > 0 || a.FailedFiles > 0 {
		line += "\n" + warnStyle.Render(fmt.Sprintf("%d row errors, %d files skipped", a.TotalRowErrors, a.FailedFiles))
	}
	return line
}

func renderWarnings(ws []service.CrossAccountWarning) string {
	lines := []string{warnStyle.Render("Possible transfers or mislabelled accounts:")}
	for _, w := range ws {
		lines = append(lines, fmt.Sprintf("  %s:%d %s %s %s also under %s",
			w.Filename, w.Line, w.Date, w.Amount.StringFixed(2), truncate(w.Description, 32),
			strings.Join(w.OtherAccounts, ", ")))
	}
	return strings.Join(lines, "\n")
}

// RenderCommit summarizes a finished import.
func RenderCommit(r service.CommitResult) string {
	lines := []string{
		titleStyle.Render("Imported session ") + valueStyle.Render(r.SessionID),
		kv("persisted", fmt.Sprint(r.Persisted)) + "   " +
			kv("already imported", fmt.Sprint(r.Duplicates.Existing)) + "   " +
			kv("repeated", fmt.Sprint(r.Duplicates.InBatch())),
	}
	for _, f := range r.Files {
		lines = append(lines, fmt.Sprintf("  %s %s  %d of %d persisted",
			padRight(truncate(f.Filename, 32), 32), mutedStyle.Render(padRight(string(f.Format), 20)), f.Persisted, f.Parsed))
	}
	for _, fe := range r.FileErrors {
		lines = append(lines, errorStyle.Render("  skipped "+fe.Filename+": "+fe.Reason))
	}
	if n := len(r.Warnings); n > 0 {
		lines = append(lines, warnStyle.Render(fmt.Sprintf("%d rows match transactions under other accounts", n)))
	}
	return strings.Join(lines, "\n")
}

// RenderSessions lists sessions newest first.
func RenderSessions(sessions []repository.ImportSession) string {
	if len(sessions) == 0 {
		return mutedStyle.Render("no imports yet")
	}
	header := fmt.Sprintf("%-36s  %-19s  %-9s  %9s  %9s", "Session", "Created", "Status", "Persisted", "Skipped")
	lines := []string{tableHeaderStyle.Render(header)}
	for _, s := range sessions {
		status := creditStyle.Render(padRight(s.Status, 9))
		if s.Status == repository.SessionReverted {
			status = mutedStyle.Render(padRight(s.Status, 9))
		}
		skipped := s.Counts.DuplicateExisting + s.Counts.DuplicateInFile + s.Counts.DuplicateCrossFile
		lines = append(lines, fmt.Sprintf("%-36s  %-19s  %s  %9d  %9d",
			s.ID, s.CreatedAt.Local().Format("2006-01-02 15:04:05"), status, s.Counts.Persisted, skipped))
	}
	return strings.Join(lines, "\n")
}

// RenderSession shows one session with its files in commit order.
func RenderSession(s repository.ImportSession) string {
	lines := []string{
		titleStyle.Render("Session ") + valueStyle.Render(s.ID),
		kv("status", s.Status) + "   " + kv("created", s.CreatedAt.Local().Format("2006-01-02 15:04:05")),
		kv("parsed", fmt.Sprint(s.Counts.Parsed)) + "   " + kv("persisted", fmt.Sprint(s.Counts.Persisted)) + "   " +
			kv("already imported", fmt.Sprint(s.Counts.DuplicateExisting)) + "   " +
			kv("repeated", fmt.Sprint(s.Counts.DuplicateInFile+s.Counts.DuplicateCrossFile)),
	}
	if s.RevertedAt != nil {
		lines = append(lines, kv("reverted", s.RevertedAt.Local().Format("2006-01-02 15:04:05")))
	}
	for _, f := range s.Files {
		lines = append(lines, fmt.Sprintf("  %d. %s %s %s  %d/%d persisted, %d errors",
			f.Position+1, padRight(truncate(f.Filename, 28), 28), mutedStyle.Render(padRight(f.Format, 20)),
			padRight(truncate(f.AccountLabel, 20), 20), f.Counts.Persisted, f.Counts.Parsed, f.ErrorCount))
	}
	return strings.Join(lines, "\n")
}

func renderSection(title, content string, width int) string {
	inner := width - 4
	if inner < 10 {
		inner = 10
	}
	sep := separatorStyle.Render(strings.Repeat("─", inner))
	return sectionStyle.Width(width - 2).Render(title + "\n" + sep + "\n" + content)
}

func renderFooter(bindings []key.Binding) string {
	parts := make([]string, 0, len(bindings))
	for _, b := range bindings {
		h := b.Help()
		if h.Key == "" && h.Desc == "" {
			continue
		}
		parts = append(parts, helpKeyStyle.Render(h.Key)+" "+helpDescStyle.Render(h.Desc))
	}
	return footerStyle.Render(strings.Join(parts, "  "))
}

func kv(label, value string) string {
	return labelStyle.Render(label+": ") + textStyle.Render(value)
}

func padRight(s string, width int) string {
	w := lipgloss.Width(s)
	if width <= 0 || w >= width {
		return s
	}
	return s + strings.Repeat(" ", width-w)
}

func padLeft(s string, width int) string {
	w := lipgloss.Width(s)
	if width <= 0 || w >= width {
		return s
	}
	return strings.Repeat(" ", width-w) + s
}

// truncate shortens s to width runes, ending in an ellipsis when cut.
func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	if width <= 1 {
		return string(runes[:width])
	}
	return string(runes[:width-1]) + "…"
}

// RenderAccounts lists accounts by name.
func RenderAccounts(accounts []repository.Account) string {
	if len(accounts) == 0 {
		return mutedStyle.Render("no accounts yet")
	}
	header := fmt.Sprintf("%-28s  %-20s  %s", "Account", "Institution", "Type")
	lines := []string{tableHeaderStyle.Render(header)}
	for _, a := range accounts {
		lines = append(lines, fmt.Sprintf("%-28s  %-20s  %s", truncate(a.Name, 28), truncate(a.Institution, 20), a.AccountType))
	}
	return strings.Join(lines, "\n")
}

// RenderTransactions lists transactions newest first. categories maps
// category ids to names.
func RenderTransactions(txns []repository.Transaction, categories map[string]string, total int) string {
	header := fmt.Sprintf("%-10s  %11s  %-36s  %s", "Date", "Amount", "Description", "Category")
	lines := []string{tableHeaderStyle.Render(header)}
	for _, t := range txns {
		category := ""
		if t.CategoryID != nil {
			category = categories[*t.CategoryID]
		}
		lines = append(lines, t.Date.Format("2006-01-02")+"  "+
			amountCell(decimal.New(t.AmountCents, -2), 11)+"  "+
			padRight(truncate(t.RawDescription, 36), 36)+"  "+category)
	}
	lines = append(lines, mutedStyle.Render(fmt.Sprintf("── %d of %d transactions ──", len(txns), total)))
	return strings.Join(lines, "\n")
}

// RenderFormats lists the formats detection can report, then the custom
// mappings available to --mapping.
func RenderFormats(list []statement.Format, mappings []string) string {
	lines := []string{tableHeaderStyle.Render(fmt.Sprintf("%-20s  %s", "Format", "Kind"))}
	for _, f := range list {
		kind := "structured"
		if f.Delimited() {
			kind = "delimited"
		}
		lines = append(lines, padRight(string(f), 20)+"  "+mutedStyle.Render(kind))
	}
	if len(mappings) == 0 {
		return strings.Join(append(lines, mutedStyle.Render("no custom mappings")), "\n")
	}
	lines = append(lines, "", titleStyle.Render("Custom mappings"))
	for _, m := range mappings {
		lines = append(lines, "  "+m)
	}
	return strings.Join(lines, "\n")
}
