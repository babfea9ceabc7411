package relay

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hako/durafmt"
	"github.com/pkg/errors"

	"prekeyd/internal/auth"
	"prekeyd/internal/domain"
	"prekeyd/internal/logger"
)

// Header names carrying caller credentials.
const (
	HeaderAuthorization  = "Authorization"
	HeaderUnidentifiedAK = "Unidentified-Access-Key"
)

const defaultMaxBody = 1 << 20

var errBadRequest = errors.New("bad request")

// Server serves the key endpoints over HTTP.
type Server struct {
	keys    domain.KeyService
	authn   domain.Authenticator
	policy  *auth.Policy
	log     logger.Logger
	maxBody int64
	mux     *http.ServeMux
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerLogger sets the logger for access and error lines.
func WithServerLogger(l logger.Logger) ServerOption {
	return func(s *Server) { s.log = l }
}

// WithMaxBody caps request bodies at n bytes.
func WithMaxBody(n int64) ServerOption {
	return func(s *Server) { s.maxBody = n }
}

// NewServer returns a Server.
func NewServer(
	keys domain.KeyService,
	authn domain.Authenticator,
	policy *auth.Policy,
	opts ...ServerOption,
) *Server {
	s := &Server{
		keys:    keys,
		authn:   authn,
		policy:  policy,
		log:     logger.NewDiscard(),
		maxBody: defaultMaxBody,
		mux:     http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mux.HandleFunc("GET /v2/keys", s.handleKeyCount)
	s.mux.HandleFunc("PUT /v2/keys", s.handleUpload)
	s.mux.HandleFunc("GET /v2/keys/signed", s.handleGetSigned)
	s.mux.HandleFunc("PUT /v2/keys/signed", s.handlePutSigned)
	s.mux.HandleFunc("GET /v2/keys/{identifier}/{device}", s.handleFetch)
	return s
}

// ServeHTTP routes the request and writes one access log line for it.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.mux.ServeHTTP(rec, r)
	s.log.Infof("%s %s %d %s in %s",
		r.Method, r.URL.Path, rec.status,
		humanize.Bytes(uint64(rec.bytes)),
		durafmt.Parse(time.Since(start)).LimitFirstN(1))
}

func (s *Server) handleKeyCount(w http.ResponseWriter, r *http.Request) {
	req, ok := s.authorize(w, r, auth.OpKeyCount, false)
	if !ok {
		return
	}
	n, err := s.keys.KeyCount(r.Context(), req.Account.UUID, req.Device.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.KeyCount{Count: n})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	req, ok := s.authorize(w, r, auth.OpUpload, false)
	if !ok {
		return
	}
	var upload domain.KeyUpload
	if !s.decode(w, r, &upload) {
		return
	}
	if err := s.keys.UploadKeys(r.Context(), req.Account.UUID, req.Device.ID, upload); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetSigned(w http.ResponseWriter, r *http.Request) {
	req, ok := s.authorize(w, r, auth.OpSignedPreKeyGet, false)
	if !ok {
		return
	}
	key, found, err := s.keys.SignedPreKey(r.Context(), req.Account.UUID, req.Device.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !found {
		s.writeError(w, r, errors.Wrap(domain.ErrNotFound, "no signed prekey"))
		return
	}
	writeJSON(w, http.StatusOK, key)
}

func (s *Server) handlePutSigned(w http.ResponseWriter, r *http.Request) {
	req, ok := s.authorize(w, r, auth.OpSignedPreKeyPut, false)
	if !ok {
		return
	}
	var key domain.SignedPreKey
	if !s.decode(w, r, &key) {
		return
	}
	if err := s.keys.SetSignedPreKey(r.Context(), req.Account.UUID, req.Device.ID, key); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	req, ok := s.authorize(w, r, auth.OpFetch, true)
	if !ok {
		return
	}
	target, err := domain.ParseIdentifier(r.PathValue("identifier"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	selector, err := domain.ParseDeviceSelector(r.PathValue("device"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	bundle, err := s.keys.FetchBundle(r.Context(), target, selector, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bundle)
}

// authorize identifies the caller and checks op against the policy. Basic
// credentials win over an unidentified-access key, which is only honoured
// when allowToken is set.
func (s *Server) authorize(
	w http.ResponseWriter,
	r *http.Request,
	op auth.Operation,
	allowToken bool,
) (domain.Requester, bool) {
	var req domain.Requester
	switch header := r.Header.Get(HeaderAuthorization); {
	case header != "":
		account, device, err := s.authn.Authenticate(r.Context(), header)
		if err != nil {
			s.writeError(w, r, err)
			return domain.Requester{}, false
		}
		req.Account, req.Device = &account, &device
	case allowToken && r.Header.Get(HeaderUnidentifiedAK) != "":
		token := r.Header.Get(HeaderUnidentifiedAK)
		req.AccessToken = &token
	default:
		s.writeError(w, r, errors.Wrap(domain.ErrUnauthorized, "no credentials"))
		return domain.Requester{}, false
	}

	if err := s.policy.Authorize(auth.SubjectOf(req), op); err != nil {
		s.writeError(w, r, err)
		return domain.Requester{}, false
	}
	return req, true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, out any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBody))
	if err := dec.Decode(out); err != nil {
		s.writeError(w, r, errors.Wrapf(errBadRequest, "decode body: %v", err))
		return false
	}
	return true
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Errorf("%s %s: %v", r.Method, r.URL.Path, err)
	} else {
		s.log.Debugf("%s %s: %v", r.Method, r.URL.Path, err)
	}
	writeJSON(w, status, errorBody{Error: publicMessage(status, err)})
}

// StatusFor maps an error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrInvalidKeyState):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, domain.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, errBadRequest), errors.Is(err, domain.ErrInvalidIdentifier):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// publicMessage hides error detail that callers have no business seeing.
func publicMessage(status int, err error) string {
	switch status {
	case http.StatusUnauthorized:
		return domain.ErrUnauthorized.Error()
	case http.StatusServiceUnavailable:
		return domain.ErrUnavailable.Error()
	case http.StatusInternalServerError:
		return strings.ToLower(http.StatusText(status))
	}
	return err.Error()
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}
