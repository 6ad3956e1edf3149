// Package httpapi implements the HTTP/REST façade of spec.md §6: the
// one surface spec.md explicitly calls "out of scope" for the core
// but still specifies the interface of — Siren-encoded swap resources,
// RFC-7807 problem responses, and the seven routes that front the
// negotiation/action-derivation/persistence core built by the other
// packages. Grounded on original_source/cnd/src/http_api for exact
// JSON shapes, and on go-ethereum's own node/rpc HTTP server (a real
// direct dependency of the teacher's go.mod, julienschmidt/httprouter
// plus rs/cors, even though the concrete file using them wasn't present
// in the retrieval pack) for how to wire a router behind CORS.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/comit-network/cnd/actions"
	"github.com/comit-network/cnd/db"
	"github.com/comit-network/cnd/network"
	"github.com/comit-network/cnd/seed"
	"github.com/comit-network/cnd/statemachine"
	"github.com/comit-network/cnd/store"
	"github.com/comit-network/cnd/swap"
	"github.com/ethereum/go-ethereum/log"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"
)

// Deps are the components the HTTP façade calls into; it owns none of
// them and performs no lifecycle management of its own (node does
// that).
type Deps struct {
	Store      *store.Store
	DB         *db.Store
	Secrets    *seed.SecretSource
	Negotiator *network.Negotiator
	Identities network.IdentityProvider
	Now        func() time.Time

	// OnTransition is installed on every Driver this server creates, so
	// the node can react to transitions (launch watchers on Accepted,
	// tear down on terminal) without the server knowing how.
	OnTransition statemachine.OnTransition
}

// Server is the reference HTTP façade: an httprouter.Router wrapped
// with permissive CORS, matching spec.md §6's route list exactly.
type Server struct {
	deps    Deps
	handler http.Handler
}

// New builds a Server ready to be handed to http.Server.Handler.
func New(deps Deps) *Server {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	s := &Server{deps: deps}

	router := httprouter.New()
	router.POST("/swaps/rfc003", s.handleCreateSwap)
	router.GET("/swaps/rfc003/:id", s.handleGetSwap)
	router.POST("/swaps/rfc003/:id/accept", s.handleAccept)
	router.POST("/swaps/rfc003/:id/decline", s.handleDecline)
	router.GET("/swaps/rfc003/:id/fund", s.handleAction(actions.KindFund))
	router.GET("/swaps/rfc003/:id/redeem", s.handleAction(actions.KindRedeem))
	router.GET("/swaps/rfc003/:id/refund", s.handleAction(actions.KindRefund))

	s.handler = cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(router)

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func swapIDParam(ps httprouter.Params) (swap.ID, error) {
	return swap.ParseID(ps.ByName("id"))
}

// handleCreateSwap implements POST /swaps/rfc003 (spec.md §6): builds
// a Request, derives the SecretHash and the initiator's own identities
// from the node's SecretSource, persists it Proposed, registers a
// Driver, and negotiates with the peer in the background — the caller
// gets 201 with the swap id immediately rather than blocking on
// however long negotiation takes (spec.md §5's implicit timeout is
// measured in hours, not request-response latency).
func (s *Server) handleCreateSwap(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body createSwapRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		WriteProblem(w, problemMalformedBody(err.Error()))
		return
	}
	body = body.withDefaults(s.deps.Now())

	id := swap.NewID()
	secret, err := s.deps.Secrets.Secret(id)
	if err != nil {
		WriteProblem(w, Problem{Title: "Internal error", Status: http.StatusInternalServerError})
		return
	}
	secretHash, err := secret.Hash(swap.Sha256)
	if err != nil {
		WriteProblem(w, Problem{Title: "Internal error", Status: http.StatusInternalServerError})
		return
	}

	alphaRefund, err := resolveIdentity(body.AlphaLedgerRefundIdentity, s.deps.Secrets.RefundIdentity, body.AlphaLedger, id)
	if err != nil {
		WriteProblem(w, problemMalformedBody(err.Error()))
		return
	}
	betaRedeem, err := resolveIdentity(body.BetaLedgerRedeemIdentity, s.deps.Secrets.RedeemIdentity, body.BetaLedger, id)
	if err != nil {
		WriteProblem(w, problemMalformedBody(err.Error()))
		return
	}

	req := swap.Request{
		SwapID:                    id,
		AlphaLedger:               body.AlphaLedger,
		BetaLedger:                body.BetaLedger,
		AlphaAsset:                body.AlphaAsset,
		BetaAsset:                 body.BetaAsset,
		HashFunction:              swap.Sha256,
		AlphaExpiry:               *body.AlphaExpiry,
		BetaExpiry:                *body.BetaExpiry,
		SecretHash:                secretHash,
		AlphaLedgerRefundIdentity: alphaRefund,
		BetaLedgerRedeemIdentity:  betaRedeem,
	}

	if req.UnsupportedCombination() {
		WriteProblem(w, problemUnsupportedSwap(req.AlphaAsset.String()+" / "+req.BetaAsset.String()))
		return
	}
	if err := req.Validate(); err != nil {
		WriteProblem(w, problemMalformedBody(err.Error()))
		return
	}

	peer, err := body.Peer.toAddressHint()
	if err != nil {
		WriteProblem(w, problemMalformedBody(err.Error()))
		return
	}

	rec := swap.Record{
		SwapID:           id,
		Role:             swap.Initiator,
		CounterpartyPeer: peer.PeerID,
		Request:          req,
		CreatedAt:        s.deps.Now(),
	}
	if err := s.deps.DB.InsertProposed(r.Context(), rec); err != nil {
		WriteProblem(w, Problem{Title: "Internal storage failure", Status: http.StatusInternalServerError})
		return
	}

	driver := statemachine.NewDriver(statemachine.Propose(req), s.deps.OnTransition)
	if err := s.deps.Store.Register(id, driver); err != nil {
		driver.Close()
		WriteProblem(w, Problem{Title: "Internal error", Status: http.StatusInternalServerError})
		return
	}

	go s.negotiate(context.Background(), peer, req)

	w.Header().Set("Location", swapPath(id))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(createSwapResponse{ID: id})
}

func resolveIdentity(supplied *swap.Identity, derive func(swap.Ledger, swap.ID) (swap.Identity, error), ledger swap.Ledger, id swap.ID) (swap.Identity, error) {
	if supplied != nil {
		return *supplied, nil
	}
	return derive(ledger, id)
}

// negotiate runs Propose and feeds the outcome into the swap's Driver,
// matching the Negotiator/Driver handoff network.HandleInbound's
// responder side performs synchronously within the inbound handler.
func (s *Server) negotiate(ctx context.Context, peer network.AddressHint, req swap.Request) {
	resp, err := s.deps.Negotiator.Propose(ctx, peer, req)
	if err != nil {
		log.Warn("negotiation failed", "swap_id", req.SwapID, "err", err)
		return
	}
	driver, ok := s.deps.Store.Driver(req.SwapID)
	if !ok {
		return
	}
	if resp.Accept != nil {
		_ = s.deps.DB.RecordAccept(ctx, req.SwapID, *resp.Accept)
		_ = driver.Submit(ctx, statemachine.ReceiveAccept{SwapID: req.SwapID, Accept: *resp.Accept})
	} else if resp.Decline != nil {
		_ = s.deps.DB.RecordDecline(ctx, req.SwapID, *resp.Decline)
		_ = driver.Submit(ctx, statemachine.ReceiveDecline{SwapID: req.SwapID, Decline: *resp.Decline})
	}
}

// handleGetSwap implements GET /swaps/rfc003/<id> (spec.md §6).
func (s *Server) handleGetSwap(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := swapIDParam(ps)
	if err != nil {
		WriteProblem(w, problemMalformedBody(err.Error()))
		return
	}
	snap, ok := s.deps.Store.Snapshot(id)
	if !ok {
		WriteProblem(w, problemSwapNotFound(id))
		return
	}
	rec, err := s.deps.DB.Get(r.Context(), id)
	if err != nil {
		WriteProblem(w, problemSwapNotFound(id))
		return
	}

	peer := network.PeerID(rec.CounterpartyPeer)
	includeState := r.URL.Query().Get("include_state") == "true"
	legal := actions.Derive(snap, actions.Options{Now: s.deps.Now()})

	entity := BuildSwapEntity(snap, peer, legal, includeState)
	writeJSON(w, http.StatusOK, entity)
}

// handleAccept implements POST /swaps/rfc003/<id>/accept: the
// responder exercising the Accept action derived by actions.Derive.
// It is only legal while the swap is Proposed and the caller is the
// Responder — matching actions.Derive's own KindAccept gating, so a
// call outside that window is a 405, not merely ignored.
func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := swapIDParam(ps)
	if err != nil {
		WriteProblem(w, problemMalformedBody(err.Error()))
		return
	}
	driver, ok := s.deps.Store.Driver(id)
	if !ok {
		WriteProblem(w, problemSwapNotFound(id))
		return
	}
	snap := driver.Snapshot()
	if !hasAction(snap, actions.KindAccept, s.deps.Now()) {
		WriteProblem(w, problemActionNotFoundForState("accept"))
		return
	}

	alphaRedeem, betaRefund, err := s.deps.Identities.Identities(r.Context(), snap.Request)
	if err != nil {
		WriteProblem(w, problemActionUnavailable("accept", err.Error()))
		return
	}
	accept := swap.Accept{SwapID: id, AlphaLedgerRedeemIdentity: alphaRedeem, BetaLedgerRefundIdentity: betaRefund}

	if err := s.deps.DB.RecordAccept(r.Context(), id, accept); err != nil {
		WriteProblem(w, Problem{Title: "Internal storage failure", Status: http.StatusInternalServerError})
		return
	}
	if err := driver.Submit(r.Context(), statemachine.ReceiveAccept{SwapID: id, Accept: accept}); err != nil {
		WriteProblem(w, Problem{Title: "Internal error", Status: http.StatusInternalServerError})
		return
	}
	// Submit only enqueues; wait until the driver has applied the
	// decision so the swap has left Proposed before the 200 goes out.
	for driver.Snapshot().Communication.Phase == swap.Proposed {
		select {
		case <-r.Context().Done():
			WriteProblem(w, Problem{Title: "Internal error", Status: http.StatusInternalServerError})
			return
		case <-time.After(time.Millisecond):
		}
	}
	s.deps.Negotiator.Deliver(id, network.Response{Accept: &accept})
	w.WriteHeader(http.StatusOK)
}

// handleDecline implements POST /swaps/rfc003/<id>/decline.
func (s *Server) handleDecline(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := swapIDParam(ps)
	if err != nil {
		WriteProblem(w, problemMalformedBody(err.Error()))
		return
	}
	driver, ok := s.deps.Store.Driver(id)
	if !ok {
		WriteProblem(w, problemSwapNotFound(id))
		return
	}
	snap := driver.Snapshot()
	if !hasAction(snap, actions.KindDecline, s.deps.Now()) {
		WriteProblem(w, problemActionNotFoundForState("decline"))
		return
	}

	var body declineRequest
	_ = json.NewDecoder(r.Body).Decode(&body)
	if !body.Reason.Valid() {
		body.Reason = swap.ReasonOther
	}
	decline := swap.Decline{SwapID: id, Reason: body.Reason}

	if err := s.deps.DB.RecordDecline(r.Context(), id, decline); err != nil {
		WriteProblem(w, Problem{Title: "Internal storage failure", Status: http.StatusInternalServerError})
		return
	}
	if err := driver.Submit(r.Context(), statemachine.ReceiveDecline{SwapID: id, Decline: decline}); err != nil {
		WriteProblem(w, Problem{Title: "Internal error", Status: http.StatusInternalServerError})
		return
	}
	// As in handleAccept: return only once the decision is applied.
	for driver.Snapshot().Communication.Phase == swap.Proposed {
		select {
		case <-r.Context().Done():
			WriteProblem(w, Problem{Title: "Internal error", Status: http.StatusInternalServerError})
			return
		case <-time.After(time.Millisecond):
		}
	}
	s.deps.Negotiator.Deliver(id, network.Response{Decline: &decline})
	w.WriteHeader(http.StatusOK)
}

func hasAction(s swap.State, kind actions.Kind, now time.Time) bool {
	for _, a := range actions.Derive(s, actions.Options{Now: now}) {
		if a.Kind == kind {
			return true
		}
	}
	return false
}

// handleAction returns a handler for GET /swaps/rfc003/<id>/{fund,redeem,refund}
// (spec.md §6): it looks up the matching derived Action and renders its
// Payload in the `{type, payload}` shape.
func (s *Server) handleAction(kind actions.Kind) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		id, err := swapIDParam(ps)
		if err != nil {
			WriteProblem(w, problemMalformedBody(err.Error()))
			return
		}
		driver, ok := s.deps.Store.Driver(id)
		if !ok {
			WriteProblem(w, problemSwapNotFound(id))
			return
		}
		snap := driver.Snapshot()

		var secret *swap.Secret
		if snap.Role == swap.Initiator {
			sec, err := s.deps.Secrets.Secret(id)
			if err == nil {
				secret = &sec
			}
		}
		legal := actions.Derive(snap, actions.Options{Now: s.deps.Now(), InitiatorSecret: secret})

		var match *actions.Action
		for i := range legal {
			if legal[i].Kind == kind {
				match = &legal[i]
				break
			}
		}
		if match == nil {
			WriteProblem(w, problemActionUnavailable(string(kind), "not currently legal for this swap"))
			return
		}

		payload, err := s.buildActionPayload(snap, *match, r.URL.Query())
		if err != nil {
			WriteProblem(w, problemActionUnavailable(string(kind), err.Error()))
			return
		}
		body, err := encodeActionPayload(payload)
		if err != nil {
			WriteProblem(w, Problem{Title: "Internal error", Status: http.StatusInternalServerError})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
