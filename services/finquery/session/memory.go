// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package session keeps short-lived per-conversation context so
// follow-up questions can omit the company or period they refer to.
// Sessions are created lazily on first access and live until explicitly
// cleared.
//
// # Thread Safety
//
// Store is safe for concurrent use. Read-modify-write cycles on one
// session are serialized under the store lock, so concurrent requests
// for the same session id never lose ticker or period updates.
// Snapshots are deep copies; callers never share mutable state with the
// store.
package session

import (
	"sync"

	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianFinance/services/finquery/datatypes"
)

// DefaultTickerWindow is how many recently discussed tickers a session
// keeps when no window size is configured.
const DefaultTickerWindow = 3

// Store is an in-memory session registry.
type Store struct {
	mu         sync.RWMutex
	sessions   map[string]*datatypes.SessionState
	maxTickers int
}

// NewStore builds an empty Store. A non-positive window takes the
// default.
func NewStore(maxTickers int) *Store {
	if maxTickers <= 0 {
		maxTickers = DefaultTickerWindow
	}
	return &Store{
		sessions:   map[string]*datatypes.SessionState{},
		maxTickers: maxTickers,
	}
}

// Ensure returns the given session id, minting a fresh one when the
// caller supplied none, and guarantees the session exists.
func (s *Store) Ensure(sessionID string) string {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		s.sessions[sessionID] = &datatypes.SessionState{
			AliasResolutions: map[string]string{},
		}
	}
	return sessionID
}

// Snapshot returns a deep copy of the session state, or nil for an
// unknown session.
func (s *Store) Snapshot(sessionID string) *datatypes.SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	out := copyState(*state)
	return &out
}

// Remember folds an executed plan back into the session: the resolved
// tickers slide into the recency window, a concrete period and the
// touched surfaces replace the previous ones, and every successful
// alias resolution is cached for the next question.
func (s *Store) Remember(sessionID string, plan datatypes.Plan, period datatypes.Period) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.sessions[sessionID]
	if !ok {
		return
	}

	state.LastTickers = slideWindow(state.LastTickers, plan.ResolvedTickers(), s.maxTickers)
	if !period.Latest {
		p := period.Clone()
		state.LastPeriod = &p
	}
	if len(plan.Surfaces) > 0 {
		state.LastSurfaces = append([]string(nil), plan.Surfaces...)
	}
	for _, re := range plan.EntitiesResolved {
		if re.Ticker != nil && re.Entity != *re.Ticker {
			state.AliasResolutions[re.Entity] = *re.Ticker
		}
	}
	state.QueryCount++
}

// Clear drops a session. Clearing an unknown session is a no-op.
func (s *Store) Clear(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

// Len reports how many sessions are live.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// slideWindow appends incoming tickers in encounter order, moving a
// repeated ticker to the end rather than duplicating it, then truncates
// from the front so at most max entries remain, newest last.
func slideWindow(window, incoming []string, max int) []string {
	out := append([]string(nil), window...)
	for _, t := range incoming {
		for i, existing := range out {
			if existing == t {
				out = append(out[:i], out[i+1:]...)
				break
			}
		}
		out = append(out, t)
	}
	if len(out) > max {
		out = out[len(out)-max:]
	}
	return out
}

func copyState(state datatypes.SessionState) datatypes.SessionState {
	out := state
	out.LastTickers = append([]string(nil), state.LastTickers...)
	out.LastSurfaces = append([]string(nil), state.LastSurfaces...)
	if state.LastPeriod != nil {
		p := state.LastPeriod.Clone()
		out.LastPeriod = &p
	}
	out.AliasResolutions = make(map[string]string, len(state.AliasResolutions))
	for k, v := range state.AliasResolutions {
		out.AliasResolutions[k] = v
	}
	return out
}
