package sentry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/rony4d/go-adex-validator/adapter"
	"github.com/rony4d/go-adex-validator/adapter/dummy"
	"github.com/rony4d/go-adex-validator/inter"
	"github.com/rony4d/go-adex-validator/inter/balances"
	"github.com/rony4d/go-adex-validator/inter/num"
	"github.com/rony4d/go-adex-validator/inter/validatorid"
)

var (
	testChannel = inter.Channel{
		Leader:   dummy.Leader,
		Follower: dummy.Follower,
		Guardian: dummy.Guardian.Address(),
		Token:    common.HexToAddress("0x2BCaf6968aEC8A3b5126FBfAb5Fd419da6E8AD8E"),
		Nonce:    inter.NewNonce(7),
	}
	testSpender = common.HexToAddress("0xDd589B43793934EF6Ad266067A0d1D4896b0dff0")
	testEarner  = common.HexToAddress("0xE882ebF439207a70dDcCb39E13CA8506c9F45fD9")
)

func unlockedLeader(t *testing.T) adapter.Unlocked {
	t.Helper()
	unlocked, err := dummy.New(dummy.Options{Identity: dummy.Leader}).Unlock()
	require.NoError(t, err)
	return unlocked
}

func testLogger() logrus.FieldLogger {
	log, _ := test.NewNullLogger()
	return log
}

func writeJSON(t *testing.T, w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func channelSpec(nonce uint64) inter.ChannelSpec {
	ch := testChannel
	ch.Nonce = inter.NewNonce(nonce)
	return inter.ChannelSpec{Channel: ch, Validators: []inter.ValidatorDesc{{ID: dummy.Leader}, {ID: dummy.Follower}}}
}

// TestListChannelsPages fetches every page and keeps page order.
func TestListChannelsPages(t *testing.T) {
	require := require.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal("/v5/channel/list", r.URL.Path)
		require.Equal(dummy.Leader.String(), r.URL.Query().Get("validator"))
		page, err := strconv.ParseUint(r.URL.Query().Get("page"), 10, 64)
		require.NoError(err)
		writeJSON(t, w, ChannelListResponse{
			Channels:   []inter.ChannelSpec{channelSpec(page*2 + 1), channelSpec(page*2 + 2)},
			TotalPages: 3,
			Page:       page,
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, unlockedLeader(t), time.Second, testLogger())
	channels, err := c.ListChannels(context.Background())
	require.NoError(err)
	require.Len(channels, 6)
	for i, spec := range channels {
		require.Equal(channelSpec(uint64(i+1)).Channel.ID(), spec.Channel.ID())
	}
}

func TestListChannelsPageFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		writeJSON(t, w, ChannelListResponse{Channels: []inter.ChannelSpec{channelSpec(1)}, TotalPages: 3})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, unlockedLeader(t), time.Second, testLogger())
	_, err := c.ListChannels(context.Background())
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusInternalServerError, statusErr.Status)
}

func TestGetLatestAccounting(t *testing.T) {
	require := require.New(t)
	id := testChannel.ID()

	b := balances.NewChecked()
	require.NoError(b.Spend(testSpender, testEarner, 150))
	accounting := inter.Accounting{
		LastEventAggregate: inter.Timestamp(1_600_000_000_000),
		BalancesBeforeFees: b.Erase(),
		Balances:           b,
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case fmt.Sprintf("/v5/channel/%s/validator-messages/%s/Accounting", id.Hex(), dummy.Leader):
			require.Equal("1", r.URL.Query().Get("limit"))
			writeJSON(t, w, ValidatorMessagesResponse{ValidatorMessages: []ValidatorMessage{{
				From: dummy.Leader,
				Msg:  inter.Envelope{Message: accounting},
			}}})
		default:
			writeJSON(t, w, ValidatorMessagesResponse{})
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, unlockedLeader(t), time.Second, testLogger())
	got, err := c.GetLatestAccounting(context.Background(), id, dummy.Leader)
	require.NoError(err)
	require.NotNil(got)
	require.Equal(accounting.LastEventAggregate, got.LastEventAggregate)
	require.Equal(num.UnifiedNum(150), got.Balances.Earners().Get(testEarner))

	got, err = c.GetLatestAccounting(context.Background(), id, dummy.Follower)
	require.NoError(err)
	require.Nil(got)

	msg, err := c.GetLatestMessage(context.Background(), id, dummy.Follower, inter.TypeApproveState, inter.TypeRejectState)
	require.NoError(err)
	require.Nil(msg)
}

// TestGetEventAggregates sends our own auth token and the watermark.
func TestGetEventAggregates(t *testing.T) {
	require := require.New(t)
	id := testChannel.ID()
	aggr := inter.EventAggregate{
		ChannelID: id,
		Spender:   testSpender,
		Created:   inter.Timestamp(1_600_000_000_500),
		Events: map[string]inter.AggregateEvents{
			"IMPRESSION": {EventPayouts: map[common.Address]num.UnifiedNum{testEarner: 100}},
		},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal("/v5/channel/"+id.Hex()+"/events-aggregates", r.URL.Path)
		require.Equal("Bearer AUTH_awesomeLeader", r.Header.Get("Authorization"))
		require.Equal("1600000000000", r.URL.Query().Get("after"))
		writeJSON(t, w, EventAggregatesResponse{Channel: id, Events: []inter.EventAggregate{aggr}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, unlockedLeader(t), time.Second, testLogger())
	got, err := c.GetEventAggregates(context.Background(), id, inter.Timestamp(1_600_000_000_000))
	require.NoError(err)
	require.Len(got, 1)
	require.Equal(aggr.Created, got[0].Created)
	require.Equal(num.UnifiedNum(100), got[0].Events["IMPRESSION"].EventPayouts[testEarner])
}

func TestGetAllSpenders(t *testing.T) {
	require := require.New(t)
	id := testChannel.ID()
	other := common.HexToAddress("0x0000000000000000000000000000000000000b0b")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		spender := testSpender
		if r.URL.Query().Get("page") == "1" {
			spender = other
		}
		writeJSON(t, w, SpendersResponse{
			Spenders: map[common.Address]inter.Spendable{spender: {
				Spender: spender,
				Channel: id,
				Deposit: inter.Deposit{Total: num.NewBigNum(1_000), StillOnCreate2: num.NewBigNum(0)},
			}},
			TotalPages: 2,
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, unlockedLeader(t), time.Second, testLogger())
	got, err := c.GetAllSpenders(context.Background(), id)
	require.NoError(err)
	require.Len(got, 2)
	require.Equal("1000", got[other].Deposit.Total.String())
}

// TestPageCountBounded refuses an absurd page count without requesting
// any further page.
func TestPageCountBounded(t *testing.T) {
	require := require.New(t)

	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		if strings.HasSuffix(r.URL.Path, "/spender/all") {
			writeJSON(t, w, SpendersResponse{TotalPages: math.MaxUint64})
			return
		}
		writeJSON(t, w, ChannelListResponse{Channels: []inter.ChannelSpec{channelSpec(1)}, TotalPages: math.MaxUint64})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, unlockedLeader(t), time.Second, testLogger())
	_, err := c.ListChannels(context.Background())
	require.Error(err)
	_, err = c.GetAllSpenders(context.Background(), testChannel.ID())
	require.Error(err)
	require.Equal(int32(2), atomic.LoadInt32(&requests))
}

// TestPagesFetchedConcurrently fetches every page with a bounded number of
// requests in flight.
func TestPagesFetchedConcurrently(t *testing.T) {
	require := require.New(t)
	const total = 40

	var inFlight, peak int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&inFlight, 1)
		defer atomic.AddInt32(&inFlight, -1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)

		page, err := strconv.ParseUint(r.URL.Query().Get("page"), 10, 64)
		require.NoError(err)
		writeJSON(t, w, ChannelListResponse{Channels: []inter.ChannelSpec{channelSpec(page + 1)}, TotalPages: total, Page: page})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, unlockedLeader(t), time.Second, testLogger())
	channels, err := c.ListChannels(context.Background())
	require.NoError(err)
	require.Len(channels, total)
	require.Equal(channelSpec(total).Channel.ID(), channels[total-1].Channel.ID())
	require.LessOrEqual(atomic.LoadInt32(&peak), int32(pageFetchers))
}

// validatorServer acknowledges validator messages, or fails with status.
func validatorServer(t *testing.T, status int, delay time.Duration, received chan<- ValidatorMessagesRequest) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		if status != http.StatusOK {
			http.Error(w, "unavailable", status)
			return
		}
		var req ValidatorMessagesRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if received != nil {
			received <- req
		}
		writeJSON(t, w, SuccessResponse{Success: true})
	}))
}

// TestPropagatePartialFailure: three validators, one failing. The other
// two receive the messages and the failure is reported, not fatal.
func TestPropagatePartialFailure(t *testing.T) {
	require := require.New(t)
	received := make(chan ValidatorMessagesRequest, 2)

	ok1 := validatorServer(t, http.StatusOK, 0, received)
	defer ok1.Close()
	ok2 := validatorServer(t, http.StatusOK, 0, received)
	defer ok2.Close()
	broken := validatorServer(t, http.StatusInternalServerError, 0, nil)
	defer broken.Close()

	third := validatorid.MustFromString("0x0000000000000000000000000000000000000003")
	recipients := []inter.ValidatorDesc{
		{ID: dummy.Leader, URL: ok1.URL},
		{ID: dummy.Follower, URL: broken.URL},
		{ID: third, URL: ok2.URL},
	}
	hb := inter.Heartbeat{Signature: "sig", StateRoot: common.HexToHash("0x01"), Timestamp: inter.Timestamp(1)}

	p := NewPropagator(unlockedLeader(t), time.Second, testLogger())
	res := p.Propagate(context.Background(), testChannel.ID(), recipients, hb)

	require.Len(res.Succeeded(), 2)
	require.Len(res.Failed(), 1)
	require.Equal(dummy.Follower, res.Failed()[0].Validator)
	require.False(res.AllFailed())

	var perr *PropagationError
	require.True(errors.As(res.Err(), &perr))
	require.False(perr.Total())

	for i := 0; i < 2; i++ {
		req := <-received
		require.Len(req.Messages, 1)
		require.Equal(hb, req.Messages[0].Message)
	}
}

func TestPropagateAllFailed(t *testing.T) {
	require := require.New(t)
	slow := validatorServer(t, http.StatusOK, time.Second, nil)
	defer slow.Close()
	broken := validatorServer(t, http.StatusBadGateway, 0, nil)
	defer broken.Close()

	recipients := []inter.ValidatorDesc{{ID: dummy.Leader, URL: slow.URL}, {ID: dummy.Follower, URL: broken.URL}}
	p := NewPropagator(unlockedLeader(t), 50*time.Millisecond, testLogger())
	res := p.Propagate(context.Background(), testChannel.ID(), recipients, inter.Heartbeat{})

	require.True(res.AllFailed())
	var perr *PropagationError
	require.True(errors.As(res.Err(), &perr))
	require.True(perr.Total())
	require.Contains(perr.Error(), "2 of 2")
}

func TestPropagateSuccess(t *testing.T) {
	srv := validatorServer(t, http.StatusOK, 0, nil)
	defer srv.Close()

	p := NewPropagator(unlockedLeader(t), time.Second, testLogger())
	res := p.Propagate(context.Background(), testChannel.ID(), []inter.ValidatorDesc{{ID: dummy.Leader, URL: srv.URL}}, inter.Heartbeat{})
	require.NoError(t, res.Err())
	require.False(t, res.AllFailed())
}

func TestMemoryStoreLastApproved(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	spec := channelSpec(1)
	id := spec.Channel.ID()

	store := NewMemoryStore()
	store.AddChannel(spec)

	la, err := store.GetLastApproved(ctx, id)
	require.NoError(err)
	require.Nil(la)

	first := inter.NewState{StateRoot: common.HexToHash("0x01"), Signature: "a", Balances: balances.NewChecked()}
	second := inter.NewState{StateRoot: common.HexToHash("0x02"), Signature: "b", Balances: balances.NewChecked()}
	store.PostMessages(id, dummy.Leader, first, second)
	store.PostMessages(id, dummy.Follower, inter.ApproveState{StateRoot: first.StateRoot, IsHealthy: true})

	la, err = store.GetLastApproved(ctx, id)
	require.NoError(err)
	require.Equal(first.StateRoot, la.NewState.StateRoot)
	require.True(la.ApproveState.IsHealthy)

	msg, err := store.GetLatestMessage(ctx, id, dummy.Leader, inter.TypeNewState)
	require.NoError(err)
	require.Equal(second, msg)
}

func TestMemoryPropagatorUnreachable(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	spec := channelSpec(1)
	id := spec.Channel.ID()

	store := NewMemoryStore()
	store.SetUnreachable(dummy.Follower, true)
	p := store.Propagator(dummy.Leader)

	res := p.Propagate(ctx, id, spec.Validators, inter.Heartbeat{Timestamp: 1})
	require.Len(res.Failed(), 1)
	require.ErrorIs(res.Failed()[0].Err, ErrUnreachable)
	require.Len(store.Messages(id), 1)

	store.SetUnreachable(dummy.Leader, true)
	res = p.Propagate(ctx, id, spec.Validators, inter.Heartbeat{Timestamp: 2})
	require.True(res.AllFailed())
	require.Len(store.Messages(id), 1)
}

func TestMemoryStoreCanceled(t *testing.T) {
	require := require.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	spec := channelSpec(1)
	id := spec.Channel.ID()

	store := NewMemoryStore()
	store.AddChannel(spec)

	_, err := store.ListChannels(ctx)
	require.ErrorIs(err, context.Canceled)
	_, err = store.GetAllSpenders(ctx, id)
	require.ErrorIs(err, context.Canceled)
	_, err = store.GetLatestAccounting(ctx, id, dummy.Leader)
	require.ErrorIs(err, context.Canceled)

	res := store.Propagator(dummy.Leader).Propagate(ctx, id, spec.Validators, inter.Heartbeat{Timestamp: 1})
	require.True(res.AllFailed())
	require.Empty(store.Messages(id))
}
