// Package httpapi exposes the node's HTTP surface via gorilla/mux,
// mirroring daglabs-btcd's apiserver/server route-wrapper shape
// (makeHandler/sendJSONResponse/HandlerError) adapted to a {ok, result,
// error} response envelope instead of daglabs-btcd's bare HandlerError
// body.
package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/The-Sycorax/denaro/internal/errs"
	"github.com/The-Sycorax/denaro/internal/node"
	"github.com/The-Sycorax/denaro/internal/peer"
)

// envelope is the response shape every route returns: { ok, result?, error? }.
type envelope struct {
	OK     bool        `json:"ok"`
	Result interface{} `json:"result,omitempty"`
	Error  *errPayload `json:"error,omitempty"`
}

type errPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// handlerFunc is the shape every route's business logic implements; it
// returns a JSON-able result or an error that writeResult translates into
// the envelope + HTTP status.
type handlerFunc func(n *node.Node, r *http.Request) (interface{}, error)

func wrap(n *node.Node, fn handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := fn(n, r)
		writeResult(w, result, err)
	}
}

func writeResult(w http.ResponseWriter, result interface{}, err error) {
	w.Header().Set("content-type", "application/json")
	if err != nil {
		code := errs.CodeOf(err)
		w.WriteHeader(errs.HTTPStatus(code))
		_ = json.NewEncoder(w).Encode(envelope{OK: false, Error: &errPayload{Code: code.String(), Message: err.Error()}})
		return
	}
	_ = json.NewEncoder(w).Encode(envelope{OK: true, Result: result})
}

// presenceOrBool reports a query flag's value, treating bare presence
// (`?pretty`) as true ("Booleans may be presence-only").
func presenceOrBool(r *http.Request, key string) bool {
	values, ok := r.URL.Query()[key]
	if !ok {
		return false
	}
	if len(values) == 0 || values[0] == "" {
		return true
	}
	b, err := strconv.ParseBool(values[0])
	if err != nil {
		return true
	}
	return b
}

// rateLimited wraps fn with a public-endpoint rate-limit check keyed by
// client IP.
func rateLimited(n *node.Node, fn handlerFunc) handlerFunc {
	return func(n2 *node.Node, r *http.Request) (interface{}, error) {
		key := clientIP(r)
		if !n2.RateLimiter.Allow(r.URL.Path, key, time.Now()) {
			return nil, errs.New(errs.ErrRateLimited, "rate limit exceeded for %s", r.URL.Path)
		}
		return fn(n2, r)
	}
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// readAndRestoreBody drains r.Body for signature verification while
// leaving it readable for the downstream handler.
func readAndRestoreBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}

// signedEnvelope wraps fn with signed-request envelope verification,
// used for the peer-only routes (/push_block, /push_blocks,
// /handshake/challenge).
func signedEnvelope(n *node.Node, fn handlerFunc) handlerFunc {
	return func(n2 *node.Node, r *http.Request) (interface{}, error) {
		body, err := readAndRestoreBody(r)
		if err != nil {
			return nil, errs.New(errs.ErrMalformedInput, "read request body: %s", err)
		}
		headers := peer.EnvelopeHeaders{
			NodeID:      r.Header.Get("x-node-id"),
			NodePubkey:  r.Header.Get("x-node-pubkey"),
			NodeVersion: r.Header.Get("x-node-version"),
			Timestamp:   r.Header.Get("x-timestamp"),
			Signature:   r.Header.Get("x-signature"),
		}
		if err := peer.Verify(headers, r.Method, r.URL.Path, body, time.Now()); err != nil {
			if record, ok := n2.Peers.Get(headers.NodeID); ok {
				record.Adjust(peer.ScoreMalformedEnvelope, time.Now())
			}
			return nil, err
		}
		if record, ok := n2.Peers.Get(headers.NodeID); ok {
			if record.IsBanned(time.Now()) {
				return nil, errs.New(errs.ErrPeerBanned, "peer %s is banned", headers.NodeID)
			}
		}
		return fn(n2, r)
	}
}

// NewRouter builds the full HTTP surface bound to n.
func NewRouter(n *node.Node) *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/", wrap(n, rootHandler)).Methods(http.MethodGet)
	router.HandleFunc("/get_status", wrap(n, rateLimited(n, statusHandler))).Methods(http.MethodGet)
	router.HandleFunc("/get_peers", wrap(n, rateLimited(n, peersHandler))).Methods(http.MethodGet, http.MethodPost)
	router.HandleFunc("/get_block", wrap(n, rateLimited(n, getBlockHandler))).Methods(http.MethodGet)
	router.HandleFunc("/get_blocks", wrap(n, rateLimited(n, getBlocksHandler))).Methods(http.MethodGet)
	router.HandleFunc("/get_transaction", wrap(n, rateLimited(n, getTransactionHandler))).Methods(http.MethodGet)
	router.HandleFunc("/get_mining_info", wrap(n, rateLimited(n, getMiningInfoHandler))).Methods(http.MethodGet)
	router.HandleFunc("/get_pending_transactions", wrap(n, rateLimited(n, getPendingTransactionsHandler))).Methods(http.MethodGet)
	router.HandleFunc("/sync_blockchain", wrap(n, rateLimited(n, syncBlockchainHandler))).Methods(http.MethodGet)
	router.HandleFunc("/submit_block", wrap(n, rateLimited(n, submitBlockHandler))).Methods(http.MethodPost)
	router.HandleFunc("/push_tx", wrap(n, rateLimited(n, pushTxHandler))).Methods(http.MethodPost)

	router.HandleFunc("/push_block", wrap(n, signedEnvelope(n, pushBlockHandler))).Methods(http.MethodPost)
	router.HandleFunc("/push_blocks", wrap(n, signedEnvelope(n, pushBlocksHandler))).Methods(http.MethodPost)
	router.HandleFunc("/handshake/challenge", wrap(n, signedEnvelope(n, handshakeChallengeHandler))).Methods(http.MethodGet, http.MethodPost)

	return router
}
