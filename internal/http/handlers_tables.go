package http

import (
	"net/http"

	applog "ledger/internal/log"
)

func (s *Server) handleLoadTable(w http.ResponseWriter, r *http.Request) {
	t, err := tableParam(r)
	if err != nil {
		s.fail(w, r, applog.OpRead, err)
		return
	}
	tbl, err := s.ledger.Load(r.Context(), t)
	if err != nil {
		s.fail(w, r, applog.OpRead, err)
		return
	}
	if match := r.Header.Get("If-None-Match"); match != "" && match == etag(tbl.Version) {
		w.Header().Set("ETag", etag(tbl.Version))
		w.WriteHeader(http.StatusNotModified)
		return
	}
	NewJSONResponse().ETag(tbl.Version).Body(tbl).Write(w)
}

func (s *Server) handleReplaceTable(w http.ResponseWriter, r *http.Request) {
	t, err := tableParam(r)
	if err != nil {
		s.fail(w, r, applog.OpReplace, err)
		return
	}
	version, err := ifMatch(r)
	if err != nil {
		s.fail(w, r, applog.OpReplace, err)
		return
	}
	rows, err := NewRequestBodyParser(r).Rows(t)
	if err != nil {
		s.fail(w, r, applog.OpReplace, err)
		return
	}
	tbl, err := s.ledger.ReplaceTable(r.Context(), t, rows, version)
	if err != nil {
		s.fail(w, r, applog.OpReplace, err)
		return
	}
	s.invalidate()
	NewJSONResponse().ETag(tbl.Version).Body(tbl).Write(w)
}

func (s *Server) handleAppendRow(w http.ResponseWriter, r *http.Request) {
	t, err := tableParam(r)
	if err != nil {
		s.fail(w, r, applog.OpAppend, err)
		return
	}
	row, err := NewRequestBodyParser(r).Row(t)
	if err != nil {
		s.fail(w, r, applog.OpAppend, err)
		return
	}
	tbl, err := s.ledger.AppendRow(r.Context(), t, row)
	if err != nil {
		s.fail(w, r, applog.OpAppend, err)
		return
	}
	s.invalidate()
	NewJSONResponse().Status(http.StatusCreated).ETag(tbl.Version).Body(tbl).Write(w)
}

func (s *Server) handleUpdateRow(w http.ResponseWriter, r *http.Request) {
	t, err := tableParam(r)
	if err != nil {
		s.fail(w, r, applog.OpUpdate, err)
		return
	}
	index, err := indexParam(r, "index")
	if err != nil {
		s.fail(w, r, applog.OpUpdate, err)
		return
	}
	version, err := ifMatch(r)
	if err != nil {
		s.fail(w, r, applog.OpUpdate, err)
		return
	}
	row, err := NewRequestBodyParser(r).Row(t)
	if err != nil {
		s.fail(w, r, applog.OpUpdate, err)
		return
	}
	tbl, err := s.ledger.UpdateRow(r.Context(), t, index, row, version)
	if err != nil {
		s.fail(w, r, applog.OpUpdate, err)
		return
	}
	s.invalidate()
	NewJSONResponse().ETag(tbl.Version).Body(tbl).Write(w)
}

func (s *Server) handleArchiveTable(w http.ResponseWriter, r *http.Request) {
	t, err := tableParam(r)
	if err != nil {
		s.fail(w, r, applog.OpArchive, err)
		return
	}
	info, err := s.ledger.Archive(r.Context(), t, s.now())
	if err != nil {
		s.fail(w, r, applog.OpArchive, err)
		return
	}
	s.invalidate()
	NewJSONResponse().Status(http.StatusCreated).Body(info).Write(w)
}

func (s *Server) handleListArchives(w http.ResponseWriter, r *http.Request) {
	t, err := tableParam(r)
	if err != nil {
		s.fail(w, r, applog.OpList, err)
		return
	}
	list, err := s.ledger.ListArchives(r.Context(), t)
	if err != nil {
		s.fail(w, r, applog.OpList, err)
		return
	}
	NewJSONResponse().Body(map[string]any{"table": t, "archives": list}).Write(w)
}

func (s *Server) handleReadArchive(w http.ResponseWriter, r *http.Request) {
	t, err := tableParam(r)
	if err != nil {
		s.fail(w, r, applog.OpList, err)
		return
	}
	id := sanitizeInput(r.PathValue("id"))
	key := string(t) + "/" + id
	if tbl, ok := s.archives.Get(key); ok {
		NewJSONResponse().Header("X-Cache", "HIT").Body(tbl).Write(w)
		return
	}
	tbl, err := s.ledger.ReadArchive(r.Context(), t, id)
	if err != nil {
		s.fail(w, r, applog.OpList, err)
		return
	}
	s.archives.Set(key, tbl)
	NewJSONResponse().Header("X-Cache", "MISS").Body(tbl).Write(w)
}
