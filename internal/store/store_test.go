package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tokensentinel/sentinel/internal/domain"
)

func TestPositions_HasOpenPositionTracksStatus(t *testing.T) {
	p := NewPositions()
	token := domain.TokenFingerprint{Chain: domain.ChainSOL, Address: "abc"}
	pos := &domain.Position{ID: "p1", Token: token, Status: domain.PositionOpen}
	p.Save(pos)

	require.True(t, p.HasOpenPosition(token))

	pos.Status = domain.PositionClosed
	p.Save(pos)
	require.False(t, p.HasOpenPosition(token))
}

func TestPositions_CountOnlyOpenAndBreakeven(t *testing.T) {
	p := NewPositions()
	p.Save(&domain.Position{ID: "a", Status: domain.PositionOpen})
	p.Save(&domain.Position{ID: "b", Status: domain.PositionBreakeven})
	p.Save(&domain.Position{ID: "c", Status: domain.PositionClosed})

	require.Equal(t, 2, p.Count())
}

func TestGateAudit_RecentReturnsTrailingN(t *testing.T) {
	audit := NewGateAudit()
	token := domain.TokenFingerprint{Chain: domain.ChainSOL, Address: "abc"}
	for i := 0; i < 5; i++ {
		audit.Record(token, domain.GateVerdict{Gate: "hard", Verdict: domain.VerdictPass, EvaluedAt: time.Now()})
	}

	rows := audit.Recent(2)
	require.Len(t, rows, 2)
}

func TestRiskStateStore_RoundTrips(t *testing.T) {
	s := NewRiskStateStore()
	s.Save(domain.RiskState{ConsecutiveLosses: 2})

	got := s.Load()
	require.Equal(t, 2, got.ConsecutiveLosses)
}
