// Operator surface. Read-only views plus the stop/start, HODL/release,
// close/delete and utility actions, protected by an optional password.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"tradeexecutor/src/engine"
	"tradeexecutor/src/model"
)

type Server struct {
	engine *engine.Engine
	logs   *LogBuffer
	hash   []byte
	srv    *http.Server
}

func New(eng *engine.Engine, logs *LogBuffer, port, password string) (*Server, error) {
	s := &Server{engine: eng, logs: logs}

	if password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash server password: %w", err)
		}
		s.hash = hash
	}

	r := chi.NewRouter()
	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error("/healthcheck error")
		}
	})

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Get("/log", s.handleLog)
		r.Get("/trans", s.handleTrans)
		r.Get("/pnl", s.handlePnL)
		r.Get("/strategies", s.handleStrategies)
		r.Get("/trades", s.handleTrades)
		r.Get("/virtual", s.handleVirtual)
		r.Get("/graph.html", s.handleGraph)
	})

	s.srv = &http.Server{Addr: ":" + port, Handler: r}
	return s, nil
}

// Start runs the listener in the background.
func (s *Server) Start() {
	go func() {
		logger.Infof("Listening on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server crashed")
		}
	}()
}

// Shutdown stops the listener gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.hash == nil {
			next.ServeHTTP(w, r)
			return
		}
		password := r.URL.Query().Get("auth")
		if password == "" {
			password = r.Header.Get("X-Auth-Password")
		}
		if err := bcrypt.CompareHashAndPassword(s.hash, []byte(password)); err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, value any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(value); err != nil {
		logger.WithError(err).Error("failed to write response")
	}
}

func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	if dbParam := r.URL.Query().Get("db"); dbParam != "" {
		limit, err := strconv.Atoi(dbParam)
		if err != nil {
			http.Error(w, "invalid db", http.StatusBadRequest)
			return
		}
		rows, err := s.engine.Transactions(limit)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		lines := make([]string, 0, len(rows))
		for _, row := range rows {
			lines = append(lines, fmt.Sprintf("%s [%s] %s", row.CreatedAt.Format("2006-01-02 15:04:05"), row.Level, row.Message))
		}
		writeJSON(w, lines)
		return
	}
	writeJSON(w, s.logs.Lines(0))
}

func (s *Server) handleTrans(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if dbParam := r.URL.Query().Get("db"); dbParam != "" {
		parsed, err := strconv.Atoi(dbParam)
		if err != nil {
			http.Error(w, "invalid db", http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	rows, err := s.engine.Transactions(limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, rows)
}

// parsePair splits an "ASSET:mode" or "ASSET:wallet" parameter.
func parsePair(value string) (string, string, error) {
	parts := strings.SplitN(value, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("expected ASSET:value, got %q", value)
	}
	return strings.ToUpper(parts[0]), strings.ToLower(parts[1]), nil
}

func (s *Server) handlePnL(w http.ResponseWriter, r *http.Request) {
	if resetParam := r.URL.Query().Get("reset"); resetParam != "" {
		asset, mode, err := parsePair(resetParam)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.engine.ResetPnL(asset, model.TradingType(mode))
	}
	if topupParam := r.URL.Query().Get("topup"); topupParam != "" {
		asset, walletName, err := parsePair(topupParam)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := s.engine.TopUpFeeToken(asset, model.WalletType(walletName)); err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
	}
	writeJSON(w, s.engine.HistoryView())
}

func (s *Server) handleStrategies(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if _, ok := query["public"]; ok {
		writeJSON(w, s.engine.PublicStrategiesView())
		return
	}
	var err error
	if id := query.Get("stop"); id != "" {
		err = s.engine.SetStrategyStopped(id, true)
	} else if id := query.Get("start"); id != "" {
		err = s.engine.SetStrategyStopped(id, false)
	}
	if err != nil {
		s.writeOpError(w, err)
		return
	}
	writeJSON(w, s.engine.StrategiesView())
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var err error
	switch {
	case query.Get("hodl") != "":
		err = s.engine.SetTradeHodl(query.Get("hodl"), true)
	case query.Get("release") != "":
		err = s.engine.SetTradeHodl(query.Get("release"), false)
	case query.Get("stop") != "":
		err = s.engine.SetTradeStopped(query.Get("stop"), true)
	case query.Get("start") != "":
		err = s.engine.SetTradeStopped(query.Get("start"), false)
	case query.Get("close") != "":
		err = s.engine.CloseTrade(query.Get("close"))
	case query.Get("delete") != "":
		err = s.engine.DeleteTrade(query.Get("delete"))
	}
	if err != nil {
		s.writeOpError(w, err)
		return
	}
	writeJSON(w, s.engine.TradesView())
}

func (s *Server) handleVirtual(w http.ResponseWriter, r *http.Request) {
	if resetParam := r.URL.Query().Get("reset"); resetParam != "" {
		funds := decimal.Zero
		if resetParam != "true" {
			parsed, err := decimal.NewFromString(resetParam)
			if err != nil {
				http.Error(w, "invalid reset amount", http.StatusBadRequest)
				return
			}
			funds = parsed
		}
		s.engine.ResetVirtual(funds)
	}
	writeJSON(w, s.engine.VirtualView())
}

// handleGraph renders the balance summary of one (asset, mode) pair as a
// minimal HTML table.
func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	asset, mode, err := parsePair(r.URL.Query().Get("summary"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	days := s.engine.HistoryView()[model.TradingType(mode)][asset]
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	var b strings.Builder
	b.WriteString("<!DOCTYPE html><html><head><title>" + asset + " " + mode + "</title></head><body>")
	b.WriteString("<h1>" + asset + " (" + mode + ")</h1>")
	b.WriteString("<table border=\"1\"><tr><th>date</th><th>open</th><th>close</th><th>fees</th><th>pnl</th><th>opened</th><th>closed</th></tr>")
	for _, d := range days {
		b.WriteString(fmt.Sprintf("<tr><td>%s</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td><td>%d</td><td>%d</td></tr>",
			d.Date.Format("2006-01-02"), d.OpenBalance, d.CloseBalance, d.EstimatedFees, d.ProfitLoss,
			d.TotalOpenedTrades, d.TotalClosedTrades))
	}
	b.WriteString("</table></body></html>")
	if _, err := w.Write([]byte(b.String())); err != nil {
		logger.WithError(err).Error("failed to write graph page")
	}
}

func (s *Server) writeOpError(w http.ResponseWriter, err error) {
	status := http.StatusConflict
	if errors.Is(err, engine.ErrNotFound) {
		status = http.StatusNotFound
	}
	http.Error(w, err.Error(), status)
}

// shutdownTimeout bounds the graceful stop.
const shutdownTimeout = 5 * time.Second

// ShutdownTimeout exposes the default used by the executor command.
func ShutdownTimeout() time.Duration { return shutdownTimeout }
