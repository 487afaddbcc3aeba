package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"inferd/internal/engine"
	"inferd/internal/staging"
	"inferd/internal/store"
	"inferd/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	AppendChunk(data []byte) int
	BufferStatus() types.BufferStatus
	ClearBuffer()
	TakeBuffer() []byte

	PutParallelChunk(id uint32, data []byte)
	ParallelStatus(expected *uint32) types.ParallelStatus
	RemoveChunk(id uint32) bool
	ClearParallel()
	Consolidate() (chunks, bytes int, err error)

	Commit(key string) error
	CommitParallel(key string) (int, error)
	Restore(key string) error
	StableData(key string) ([]byte, error)
	StableSize(key string) (int, error)
	StorageStatus() string

	SetupModel() error
	Generate(req types.GenerateRequest) types.GenerateResponse
	ResetGeneration() error
	ModelInfo() types.ModelInfo

	Ready() bool
}

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	// Compression for JSON endpoints
	r.Use(middleware.Compress(5))
	r.Use(MetricsMiddleware)
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
		}))
	}

	r.Route("/upload", func(r chi.Router) {
		r.Post("/chunk", func(w http.ResponseWriter, req *http.Request) {
			data, ok := readRawBody(w, req)
			if !ok {
				return
			}
			size := svc.AppendChunk(data)
			observeUpload(len(data))
			writeJSON(w, types.BufferStatus{Size: size})
		})
		r.Get("/buffer", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, svc.BufferStatus())
		})
		r.Delete("/buffer", func(w http.ResponseWriter, req *http.Request) {
			svc.ClearBuffer()
			writeJSON(w, svc.BufferStatus())
		})
		r.Post("/buffer/data", func(w http.ResponseWriter, req *http.Request) {
			data := svc.TakeBuffer()
			if len(data) == 0 {
				writeJSONError(w, http.StatusBadRequest, "no data in buffer")
				return
			}
			w.Header().Set("Content-Type", "application/octet-stream")
			w.Write(data)
		})

		r.Put("/parallel/{id}", func(w http.ResponseWriter, req *http.Request) {
			id, err := parseChunkID(chi.URLParam(req, "id"))
			if err != nil {
				writeJSONError(w, http.StatusBadRequest, err.Error())
				return
			}
			data, ok := readRawBody(w, req)
			if !ok {
				return
			}
			svc.PutParallelChunk(id, data)
			observeUpload(len(data))
			writeJSON(w, svc.ParallelStatus(nil))
		})
		r.Get("/parallel", func(w http.ResponseWriter, req *http.Request) {
			var expected *uint32
			if v := req.URL.Query().Get("expected"); v != "" {
				id, err := parseChunkID(v)
				if err != nil {
					writeJSONError(w, http.StatusBadRequest, err.Error())
					return
				}
				expected = &id
			}
			writeJSON(w, svc.ParallelStatus(expected))
		})
		r.Delete("/parallel", func(w http.ResponseWriter, req *http.Request) {
			svc.ClearParallel()
			writeJSON(w, svc.ParallelStatus(nil))
		})
		r.Delete("/parallel/{id}", func(w http.ResponseWriter, req *http.Request) {
			id, err := parseChunkID(chi.URLParam(req, "id"))
			if err != nil {
				writeJSONError(w, http.StatusBadRequest, err.Error())
				return
			}
			writeJSON(w, types.RemovedResponse{Removed: svc.RemoveChunk(id)})
		})
		r.Post("/parallel/consolidate", func(w http.ResponseWriter, req *http.Request) {
			chunks, bytes, err := svc.Consolidate()
			if err != nil {
				writeMappedError(w, err)
				return
			}
			observeConsolidation()
			writeJSON(w, types.ConsolidateResponse{Chunks: chunks, Bytes: bytes})
		})
	})

	r.Route("/storage", func(r chi.Router) {
		r.Post("/{key}/commit", func(w http.ResponseWriter, req *http.Request) {
			key := chi.URLParam(req, "key")
			if err := svc.Commit(key); err != nil {
				writeMappedError(w, err)
				return
			}
			size, _ := svc.StableSize(key)
			observeCommit(size)
			writeJSON(w, types.ConsolidateResponse{Bytes: size})
		})
		r.Post("/{key}/commit-parallel", func(w http.ResponseWriter, req *http.Request) {
			n, err := svc.CommitParallel(chi.URLParam(req, "key"))
			if err != nil {
				writeMappedError(w, err)
				return
			}
			observeCommit(n)
			writeJSON(w, types.ConsolidateResponse{Bytes: n})
		})
		r.Post("/{key}/restore", func(w http.ResponseWriter, req *http.Request) {
			if err := svc.Restore(chi.URLParam(req, "key")); err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, svc.BufferStatus())
		})
		r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, types.StorageStatusResponse{Status: svc.StorageStatus()})
		})
		r.Get("/{key}", func(w http.ResponseWriter, req *http.Request) {
			data, err := svc.StableData(chi.URLParam(req, "key"))
			if err != nil {
				writeMappedError(w, err)
				return
			}
			w.Header().Set("Content-Type", "application/octet-stream")
			w.Write(data)
		})
	})

	r.Route("/model", func(r chi.Router) {
		r.Post("/setup", func(w http.ResponseWriter, req *http.Request) {
			start := time.Now()
			if err := svc.SetupModel(); err != nil {
				writeMappedError(w, err)
				return
			}
			if zlog != nil {
				zlog.Info().Dur("dur", time.Since(start)).Msg("model setup complete")
			}
			writeJSON(w, svc.ModelInfo())
		})
		r.Post("/reset", func(w http.ResponseWriter, req *http.Request) {
			if err := svc.ResetGeneration(); err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, svc.ModelInfo())
		})
		r.Get("/info", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, svc.ModelInfo())
		})
	})

	r.Post("/generate", func(w http.ResponseWriter, req *http.Request) {
		ct := req.Header.Get("Content-Type")
		if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
			writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
			return
		}
		req.Body = http.MaxBytesReader(w, req.Body, maxBodyBytes)
		var genReq types.GenerateRequest
		if err := json.NewDecoder(req.Body).Decode(&genReq); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if strings.TrimSpace(genReq.Prompt) == "" {
			writeJSONError(w, http.StatusBadRequest, "prompt is required")
			return
		}

		start := time.Now()
		resp := svc.Generate(genReq)
		observeGeneration(resp)
		if zlog != nil {
			zlog.Info().
				Bool("success", resp.Success).
				Int("tokens", resp.TokensGenerated).
				Uint64("compute_units", resp.ComputeUnitsUsed).
				Dur("dur", time.Since(start)).
				Msg("generate end")
		}
		// generation-level failures ride in the body with status 200,
		// matching the original service's response shape
		writeJSON(w, resp)
	})

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("loading"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)

	return r
}

// readRawBody reads an upload body within the configured size cap.
func readRawBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, uploadMaxBytes)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return nil, false
	}
	// zero-length chunks are legal; a single empty chunk must commit cleanly
	return data, true
}

func parseChunkID(s string) (uint32, error) {
	id, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, errBadChunkID(s)
	}
	return uint32(id), nil
}

// writeMappedError translates domain errors into HTTP status codes.
func writeMappedError(w http.ResponseWriter, err error) {
	writeJSONError(w, statusForError(err), err.Error())
}

func statusForError(err error) int {
	switch {
	case staging.IsEmptyUpload(err), staging.IsEmptyBuffer(err), engine.IsTokenization(err):
		return http.StatusBadRequest
	case store.IsKeyNotFound(err), engine.IsArtifactNotFound(err):
		return http.StatusNotFound
	case engine.IsNotInitialized(err):
		return http.StatusConflict
	case engine.IsDecode(err), engine.IsConstruction(err):
		return http.StatusUnprocessableEntity
	case engine.IsDependencyUnavailable(err):
		return http.StatusServiceUnavailable
	}
	if he, ok := err.(HTTPError); ok {
		return he.StatusCode()
	}
	return http.StatusInternalServerError
}
