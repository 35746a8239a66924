// Package invoice renders single page PDF invoices for projects and
// monthly payment plans.
package invoice

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"ledger/internal/core"

	"github.com/go-pdf/fpdf"
)

// ErrNothingDue is returned when a record has no outstanding amount.
var ErrNothingDue = errors.New("nothing due")

// Line is one label/value row of the invoice table.
type Line struct {
	Label string
	Value string
}

// Document is the content of an invoice before layout.
type Document struct {
	Agency    string
	Issued    time.Time
	Lines     []Line
	AmountDue core.Money
}

// Invoice is a rendered document ready to be saved or served.
type Invoice struct {
	Filename  string
	Data      []byte
	AmountDue core.Money
	// Milestone is set for project invoices.
	Milestone core.MilestoneSlot
}

// Renderer lays documents out on an A4 page.
type Renderer struct {
	Agency string
	// Compress toggles PDF stream compression; tests turn it off to inspect text.
	Compress bool
}

func NewRenderer(agency string) *Renderer {
	return &Renderer{Agency: agency, Compress: true}
}

// RenderProject invoices the first unpaid milestone of p. client may be
// the zero value when the project's client has no row in the clients table.
func (r *Renderer) RenderProject(p core.Project, client core.Client, at time.Time) (Invoice, error) {
	slot, amount, ok := p.NextUnpaid()
	if !ok {
		return Invoice{}, fmt.Errorf("project %q: %w", p.Name, ErrNothingDue)
	}
	lines := []Line{{"Client", p.Client}}
	if client.Contact != "" {
		lines = append(lines, Line{"Contact", client.Contact})
	}
	lines = append(lines,
		Line{"Project", p.Name},
		Line{"Employee", p.Employee},
		Line{"Budget", p.Budget.USD()},
		Line{"Milestone", slot.Label()},
	)
	data, err := r.Render(Document{Agency: r.Agency, Issued: at, Lines: lines, AmountDue: amount})
	if err != nil {
		return Invoice{}, err
	}
	return Invoice{
		Filename:  ProjectFilename(p.Client, at),
		Data:      data,
		AmountDue: amount,
		Milestone: slot,
	}, nil
}

// RenderMonthly invoices an unpaid monthly plan entry.
func (r *Renderer) RenderMonthly(m core.MonthlyPlan, at time.Time) (Invoice, error) {
	if m.Paid.Yes() || m.Amount.Cents <= 0 {
		return Invoice{}, fmt.Errorf("monthly plan for %q: %w", m.Client, ErrNothingDue)
	}
	month, year := PlanPeriod(m, at)
	lines := []Line{
		{"Client", m.Client},
		{"Period", fmt.Sprintf("%s %d", month, year)},
		{"Payment Method", m.PaymentMethod},
		{"Social Media Budget", string(m.SocialMediaBudget)},
	}
	if !m.DueDate.IsNull() {
		lines = append(lines, Line{"Due Date", m.DueDate.String()})
	}
	data, err := r.Render(Document{Agency: r.Agency, Issued: at, Lines: lines, AmountDue: m.Amount})
	if err != nil {
		return Invoice{}, err
	}
	return Invoice{
		Filename:  MonthlyFilename(m.Client, month, year),
		Data:      data,
		AmountDue: m.Amount,
	}, nil
}

// Render draws the fixed layout: title block, label/value table, amount
// due and a page footer.
func (r *Renderer) Render(doc Document) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(r.Compress)
	pdf.SetTitle(Latin1("Invoice "+doc.Agency), false)
	pdf.SetCreator("ledger", false)
	pdf.SetCreationDate(doc.Issued)
	pdf.SetModificationDate(doc.Issued)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.CellFormat(0, 10, fmt.Sprintf("Page %d", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 20)
	pdf.CellFormat(0, 12, "INVOICE", "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	if doc.Agency != "" {
		pdf.CellFormat(0, 7, Latin1(doc.Agency), "", 1, "C", false, 0, "")
	}
	pdf.CellFormat(0, 7, "Issued: "+doc.Issued.Format("2006-01-02"), "", 1, "C", false, 0, "")
	pdf.Ln(8)

	pdf.SetFillColor(235, 235, 235)
	for _, l := range doc.Lines {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(60, 8, Latin1(l.Label), "1", 0, "L", true, 0, "")
		pdf.SetFont("Helvetica", "", 11)
		pdf.CellFormat(0, 8, Latin1(l.Value), "1", 1, "L", false, 0, "")
	}
	pdf.Ln(4)
	pdf.SetFont("Helvetica", "B", 13)
	pdf.CellFormat(60, 10, "Amount Due", "1", 0, "L", true, 0, "")
	pdf.CellFormat(0, 10, doc.AmountDue.USD(), "1", 1, "R", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// Save writes inv under dir and returns the file path.
func Save(dir string, inv Invoice) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create invoice dir: %w", err)
	}
	path := filepath.Join(dir, inv.Filename)
	if err := os.WriteFile(path, inv.Data, 0o644); err != nil {
		return "", fmt.Errorf("write invoice: %w", err)
	}
	return path, nil
}

// ProjectFilename is Invoice_{Client}_{YYYYMMDD}.pdf.
func ProjectFilename(client string, at time.Time) string {
	return fmt.Sprintf("Invoice_%s_%s.pdf", SafeName(client), at.Format("20060102"))
}

// MonthlyFilename is MonthlyInvoice_{Client}_{Month}_{Year}.pdf.
func MonthlyFilename(client string, month time.Month, year int) string {
	return fmt.Sprintf("MonthlyInvoice_%s_%s_%d.pdf", SafeName(client), month, year)
}

// SafeName makes a client name usable inside a filename and a quoted
// Content-Disposition parameter. Spaces become underscores; separators,
// quotes, shell metacharacters and control characters are dropped.
func SafeName(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r == ' ':
			return '_'
		case unicode.IsControl(r), strings.ContainsRune(`"'/\:;*?<>|`, r):
			return -1
		}
		return r
	}, strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "..", "")
	if s == "" {
		return "Client"
	}
	return s
}

var monthLayouts = []string{"January 2006", "Jan 2006", "2006-01", "01/2006", "January", "Jan"}

// PlanPeriod resolves the billing month and year of a plan entry from its
// Month label. A label without a year takes the due date's year, then the
// issue date's year. An unreadable label takes the due date's month, then
// the issue month.
func PlanPeriod(m core.MonthlyPlan, at time.Time) (time.Month, int) {
	label := strings.TrimSpace(m.Month)
	for _, layout := range monthLayouts {
		t, err := time.Parse(layout, label)
		if err != nil {
			continue
		}
		if strings.Contains(layout, "2006") {
			return t.Month(), t.Year()
		}
		return t.Month(), fallbackYear(m, at)
	}
	if !m.DueDate.IsNull() {
		return m.DueDate.Month(), m.DueDate.Year()
	}
	return at.Month(), at.Year()
}

func fallbackYear(m core.MonthlyPlan, at time.Time) int {
	if !m.DueDate.IsNull() {
		return m.DueDate.Year()
	}
	return at.Year()
}
