package http

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"ledger/internal/core"
	"ledger/internal/invoice"
	applog "ledger/internal/log"
)

type categoryAmount struct {
	Category string     `json:"category"`
	Amount   core.Money `json:"amount"`
}

type summaryResponse struct {
	Income          core.Money       `json:"income"`
	Outstanding     core.Money       `json:"outstanding"`
	PaidSalaries    core.Money       `json:"paid_salaries"`
	UnpaidSalaries  core.Money       `json:"unpaid_salaries"`
	Expenses        core.Money       `json:"expenses"`
	TotalExpenses   core.Money       `json:"total_expenses"`
	MoneyLeft       core.Money       `json:"money_left"`
	ByCategory      []categoryAmount `json:"by_category"`
	ProjectsPaid    int              `json:"projects_paid"`
	ProjectsNotPaid int              `json:"projects_not_paid"`
	MonthlyPlanned  core.Money       `json:"monthly_planned"`
	MonthlyPaid     core.Money       `json:"monthly_paid"`
	MonthlyUnpaid   core.Money       `json:"monthly_unpaid"`
}

func newSummaryResponse(s core.Summary) summaryResponse {
	out := summaryResponse{
		Income:          s.Income,
		Outstanding:     s.Outstanding,
		PaidSalaries:    s.PaidSalaries,
		UnpaidSalaries:  s.UnpaidSalaries,
		Expenses:        s.Expenses,
		TotalExpenses:   s.TotalExpenses,
		MoneyLeft:       s.MoneyLeft,
		ByCategory:      make([]categoryAmount, 0, len(s.ByCategory)),
		ProjectsPaid:    s.ProjectsPaid,
		ProjectsNotPaid: s.ProjectsNotPaid,
		MonthlyPlanned:  s.MonthlyPlanned,
		MonthlyPaid:     s.MonthlyPaid,
		MonthlyUnpaid:   s.MonthlyUnpaid,
	}
	for _, c := range s.ByCategory {
		out.ByCategory = append(out.ByCategory, categoryAmount{Category: c.Name, Amount: c.Amount})
	}
	return out
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if cached, ok := s.cachedSummary(); ok {
		NewJSONResponse().Header("X-Cache", "HIT").Body(cached).Write(w)
		return
	}
	sum, err := s.ledger.Summary(r.Context())
	if err != nil {
		s.fail(w, r, applog.OpRead, err)
		return
	}
	resp := newSummaryResponse(sum)
	s.summaries.SetDefault(summaryKey, resp)
	NewJSONResponse().Header("X-Cache", "MISS").Body(resp).Write(w)
}

// handleArchiveAll archives every table. Per-table failures are reported
// in the body; the status is 207 when some tables failed.
func (s *Server) handleArchiveAll(w http.ResponseWriter, r *http.Request) {
	report := s.ledger.ArchiveAll(r.Context(), s.now())
	s.invalidate()

	status := http.StatusOK
	if err := report.Err(); err != nil {
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Archive run finished with failures",
			applog.FieldOperation, applog.OpArchive,
			applog.FieldError, err)
		status = http.StatusMultiStatus
	}
	NewJSONResponse().Status(status).Body(report.WithErrorText()).Write(w)
}

func (s *Server) handleMarkMilestonePaid(w http.ResponseWriter, r *http.Request) {
	index, err := indexParam(r, "index")
	if err != nil {
		s.fail(w, r, applog.OpUpdate, err)
		return
	}
	slot, err := core.ParseMilestoneSlot(sanitizeInput(r.PathValue("slot")))
	if err != nil {
		s.fail(w, r, applog.OpUpdate, err)
		return
	}
	// If-Match is optional here; the ledger falls back to the version it loads.
	version := strings.Trim(strings.TrimPrefix(strings.TrimSpace(r.Header.Get("If-Match")), "W/"), `"`)

	tbl, err := s.ledger.MarkMilestonePaid(r.Context(), index, slot, version)
	if err != nil {
		s.fail(w, r, applog.OpUpdate, err)
		return
	}
	s.invalidate()
	NewJSONResponse().ETag(tbl.Version).Body(tbl).Write(w)
}

func (s *Server) handleProjectInvoice(w http.ResponseWriter, r *http.Request) {
	s.serveInvoice(w, r, s.ledger.GenerateProjectInvoice)
}

func (s *Server) handleMonthlyInvoice(w http.ResponseWriter, r *http.Request) {
	s.serveInvoice(w, r, s.ledger.GenerateMonthlyInvoice)
}

func (s *Server) serveInvoice(w http.ResponseWriter, r *http.Request, generate func(ctx context.Context, index int) (invoice.Invoice, error)) {
	index, err := indexParam(r, "index")
	if err != nil {
		s.fail(w, r, applog.OpInvoice, err)
		return
	}
	inv, err := generate(r.Context(), index)
	if err != nil {
		s.fail(w, r, applog.OpInvoice, err)
		return
	}
	NewJSONResponse().
		Header("X-Amount-Due", inv.AmountDue.String()).
		Attachment(inv.Filename, "application/pdf", inv.Data).
		Write(w)
}

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	data, err := s.ledger.ExportWorkbook(r.Context())
	if err != nil {
		s.fail(w, r, applog.OpExport, err)
		return
	}
	name := "ledger_" + s.now().Format("20060102") + ".xlsx"
	NewJSONResponse().Attachment(name, xlsxContentType, data).Write(w)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 32<<20)
	replaced, err := s.ledger.ImportWorkbook(r.Context(), r.Body)
	if len(replaced) > 0 {
		s.invalidate()
	}
	if err != nil && len(replaced) == 0 {
		if statusFor(err) == http.StatusInternalServerError {
			err = fmt.Errorf("%w: %v", errBadRequest, err)
		}
		s.fail(w, r, applog.OpImport, err)
		return
	}
	body := map[string]any{"replaced": replaced}
	if err != nil {
		body["error"] = err.Error()
	}
	NewJSONResponse().Body(body).Write(w)
}
