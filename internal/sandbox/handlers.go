package sandbox

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/Layr-Labs/entity-client/pkg/entity"
	"github.com/gin-gonic/gin"
)

func restParts(c *gin.Context) []string {
	rest := strings.Trim(c.Param("rest"), "/")
	if rest == "" {
		return nil
	}
	return strings.Split(rest, "/")
}

func parseSeq(s string) (int64, bool) {
	seq, err := strconv.ParseInt(s, 10, 64)
	return seq, err == nil && seq > 0
}

func pageFrom(c *gin.Context, defLimit int) Page {
	page, err := strconv.Atoi(c.Query("page"))
	if err != nil || page <= 0 {
		page = 1
	}
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit <= 0 {
		limit = defLimit
	}
	return Page{Page: page, Limit: limit, OrderBy: c.Query("order_by")}
}

func (s *Server) statusFor(err error) int {
	switch {
	case errors.Is(err, ErrRowNotFound), errors.Is(err, ErrHistoryNotFound), errors.Is(err, ErrTransactionNotFound):
		return http.StatusNotFound
	default:
		return http.StatusBadRequest
	}
}

// GET /v1/entity/:entity/{seq|list|count|history/:seq}
func (s *Server) handleEntityGet(c *gin.Context) {
	name := c.Param("entity")
	parts := restParts(c)

	switch {
	case len(parts) == 1 && parts[0] == "list":
		p := pageFrom(c, 20)
		rows, total, err := s.store.Query(name, nil, p)
		if err != nil {
			s.fail(c, s.statusFor(err), err.Error())
			return
		}
		s.respond(c, http.StatusOK, gin.H{"ok": true, "data": rows, "total": total, "page": p.Page, "limit": p.Limit})

	case len(parts) == 1 && parts[0] == "count":
		s.respond(c, http.StatusOK, gin.H{"ok": true, "count": s.store.Count(name)})

	case len(parts) == 1:
		seq, ok := parseSeq(parts[0])
		if !ok {
			s.fail(c, http.StatusBadRequest, "invalid seq")
			return
		}
		row, err := s.store.Get(name, seq)
		if err != nil {
			s.fail(c, s.statusFor(err), err.Error())
			return
		}
		s.respond(c, http.StatusOK, gin.H{"ok": true, "data": row})

	case len(parts) == 2 && parts[0] == "history":
		seq, ok := parseSeq(parts[1])
		if !ok {
			s.fail(c, http.StatusBadRequest, "invalid seq")
			return
		}
		p := pageFrom(c, 50)
		entries, total := s.store.History(name, seq, p.Page, p.Limit)
		s.respond(c, http.StatusOK, gin.H{"ok": true, "data": entries, "total": total, "page": p.Page, "limit": p.Limit})

	default:
		s.fail(c, http.StatusNotFound, "route not found")
	}
}

// POST /v1/entity/:entity/{query|submit|rollback/:history_seq}
func (s *Server) handleEntityPost(c *gin.Context) {
	name := c.Param("entity")
	parts := restParts(c)

	switch {
	case len(parts) == 1 && parts[0] == "query":
		var filters []entity.Filter
		if body := requestBody(c); len(body) > 0 {
			if err := json.Unmarshal(body, &filters); err != nil {
				s.fail(c, http.StatusBadRequest, "filter must be a JSON array")
				return
			}
		}
		p := pageFrom(c, 20)
		rows, total, err := s.store.Query(name, filters, p)
		if err != nil {
			s.fail(c, s.statusFor(err), err.Error())
			return
		}
		s.respond(c, http.StatusOK, gin.H{"ok": true, "data": rows, "total": total, "page": p.Page, "limit": p.Limit})

	case len(parts) == 1 && parts[0] == "submit":
		s.handleSubmit(c, name)

	case len(parts) == 2 && parts[0] == "rollback":
		historySeq, ok := parseSeq(parts[1])
		if !ok {
			s.fail(c, http.StatusBadRequest, "invalid history seq")
			return
		}
		seq, err := s.store.Rollback(name, historySeq)
		if err != nil {
			s.fail(c, s.statusFor(err), err.Error())
			return
		}
		s.respond(c, http.StatusOK, gin.H{"ok": true, "seq": seq, "history_seq": historySeq})

	default:
		s.fail(c, http.StatusNotFound, "route not found")
	}
}

func (s *Server) handleSubmit(c *gin.Context, name string) {
	var data map[string]any
	if err := json.Unmarshal(requestBody(c), &data); err != nil || data == nil {
		s.fail(c, http.StatusBadRequest, "submit body must be a JSON object")
		return
	}

	if txID := c.GetHeader(entity.HeaderTransactionID); txID != "" {
		idx, err := s.txs.Enqueue(txID, queuedOp{Kind: opSubmit, Entity: name, Data: data}, s.now())
		if err != nil {
			s.fail(c, s.statusFor(err), err.Error())
			return
		}
		s.respond(c, http.StatusOK, gin.H{"ok": true, "seq": "$tx." + strconv.Itoa(idx), "transaction_id": txID, "queued": true})
		return
	}

	seq, err := s.store.Submit(name, data)
	if err != nil {
		s.fail(c, s.statusFor(err), err.Error())
		return
	}
	s.respond(c, http.StatusOK, gin.H{"ok": true, "seq": seq})
}

// DELETE /v1/entity/:entity/delete/:seq[?hard=true]
func (s *Server) handleEntityDelete(c *gin.Context) {
	name := c.Param("entity")
	parts := restParts(c)
	if len(parts) != 2 || parts[0] != "delete" {
		s.fail(c, http.StatusNotFound, "route not found")
		return
	}
	seq, ok := parseSeq(parts[1])
	if !ok {
		s.fail(c, http.StatusBadRequest, "invalid seq")
		return
	}
	hard := c.Query("hard") == "true"

	if txID := c.GetHeader(entity.HeaderTransactionID); txID != "" {
		if _, err := s.txs.Enqueue(txID, queuedOp{Kind: opDelete, Entity: name, Seq: seq, Hard: hard}, s.now()); err != nil {
			s.fail(c, s.statusFor(err), err.Error())
			return
		}
		s.respond(c, http.StatusOK, gin.H{"ok": true, "seq": seq, "transaction_id": txID, "queued": true})
		return
	}

	if err := s.store.Delete(name, seq, hard); err != nil {
		s.fail(c, s.statusFor(err), err.Error())
		return
	}
	s.respond(c, http.StatusOK, gin.H{"ok": true, "seq": seq, "hard": hard})
}

func (s *Server) handleTxStart(c *gin.Context) {
	id := s.txs.Start(s.now())
	s.respond(c, http.StatusOK, gin.H{"ok": true, "transaction_id": id})
}

func (s *Server) handleTxCommit(c *gin.Context) {
	id := c.Param("id")
	ops, err := s.txs.Take(id, s.now())
	if err != nil {
		s.fail(c, s.statusFor(err), err.Error())
		return
	}
	results, err := s.store.Apply(ops)
	if err != nil {
		s.fail(c, s.statusFor(err), "commit failed: "+err.Error())
		return
	}
	s.respond(c, http.StatusOK, gin.H{"ok": true, "transaction_id": id, "results": results})
}

func (s *Server) handleTxRollback(c *gin.Context) {
	id := c.Param("id")
	ops, err := s.txs.Take(id, s.now())
	if err != nil {
		s.fail(c, s.statusFor(err), err.Error())
		return
	}
	s.respond(c, http.StatusOK, gin.H{"ok": true, "transaction_id": id, "discarded": len(ops)})
}
