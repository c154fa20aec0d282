package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tokensentinel/sentinel/internal/domain"
)

func TestBus_DedupWithinSourceWindow(t *testing.T) {
	b := New(16, 30*time.Minute, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	tok := domain.TokenFingerprint{Chain: domain.ChainSOL, Address: "Abc123"}
	base := time.Now()

	b.In() <- domain.RawSignal{SourceID: "chan-a", Token: tok, Timestamp: base}
	b.In() <- domain.RawSignal{SourceID: "chan-a", Token: tok, Timestamp: base.Add(time.Second)}

	first := <-b.Out()
	require.Equal(t, tok, first.Token)

	select {
	case <-b.Out():
		t.Fatal("expected second signal from the same source within the window to be suppressed")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBus_GlobalWindowSuppressesCrossSource(t *testing.T) {
	b := New(16, 30*time.Minute, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	tok := domain.TokenFingerprint{Chain: domain.ChainBSC, Address: "0xdead"}
	base := time.Now()

	b.In() <- domain.RawSignal{SourceID: "chan-a", Token: tok, Timestamp: base}
	<-b.Out()

	b.In() <- domain.RawSignal{SourceID: "chan-b", Token: tok, Timestamp: base.Add(5 * time.Second)}

	select {
	case <-b.Out():
		t.Fatal("expected signal from a different source within GLOBAL_DEDUP_WINDOW to be suppressed")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBus_AdmitsAfterWindowElapses(t *testing.T) {
	b := New(16, 30*time.Minute, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	tok := domain.TokenFingerprint{Chain: domain.ChainSOL, Address: "Xyz"}
	base := time.Now()

	b.In() <- domain.RawSignal{SourceID: "chan-a", Token: tok, Timestamp: base}
	<-b.Out()

	b.In() <- domain.RawSignal{SourceID: "chan-b", Token: tok, Timestamp: base.Add(2 * time.Minute)}
	second := <-b.Out()
	require.Equal(t, tok, second.Token)
}
