package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/eremenai/agentlytics/pkg/services"
)

// getSessionStatsHandler handles GET /api/v1/orgs/:org_id/sessions/:session_id/stats.
func (s *Server) getSessionStatsHandler(c *gin.Context) {
	stats, err := s.stats.GetSessionStats(c.Request.Context(), c.Param("org_id"), c.Param("session_id"))
	if err != nil {
		s.renderReadError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// getRunFactsHandler handles GET /api/v1/orgs/:org_id/runs/:run_id.
func (s *Server) getRunFactsHandler(c *gin.Context) {
	facts, err := s.stats.GetRunFacts(c.Request.Context(), c.Param("org_id"), c.Param("run_id"))
	if err != nil {
		s.renderReadError(c, err)
		return
	}
	c.JSON(http.StatusOK, facts)
}

// listOrgDailyHandler handles GET /api/v1/orgs/:org_id/stats/daily?from=&to=.
func (s *Server) listOrgDailyHandler(c *gin.Context) {
	from, to, err := parseDayRange(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	rows, err := s.stats.ListOrgDaily(c.Request.Context(), c.Param("org_id"), from, to)
	if err != nil {
		s.renderReadError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"days": rows})
}

// listUserDailyHandler handles GET /api/v1/orgs/:org_id/users/:user_id/stats/daily?from=&to=.
func (s *Server) listUserDailyHandler(c *gin.Context) {
	from, to, err := parseDayRange(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	rows, err := s.stats.ListUserDaily(c.Request.Context(), c.Param("org_id"), c.Param("user_id"), from, to)
	if err != nil {
		s.renderReadError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"days": rows})
}

// parseDayRange reads the from/to query params (YYYY-MM-DD). Defaults to the
// last 30 UTC days when absent.
func parseDayRange(c *gin.Context) (time.Time, time.Time, error) {
	now := time.Now().UTC()
	from := now.AddDate(0, 0, -29)
	to := now

	if v := c.Query("from"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid from date %q, expected YYYY-MM-DD", v)
		}
		from = parsed
	}
	if v := c.Query("to"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid to date %q, expected YYYY-MM-DD", v)
		}
		to = parsed
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("to date is before from date")
	}
	return from, to, nil
}

func (s *Server) renderReadError(c *gin.Context, err error) {
	if errors.Is(err, services.ErrNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "resource not found"})
		return
	}
	slog.Error("Unexpected read error", "path", c.FullPath(), "error", err)
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
}
