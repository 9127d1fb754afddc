// Package sentry talks to the sentry HTTP API: the channel directory, the
// validator message store, event aggregates and spenders. It also fans
// validator messages out to every validator of a channel.
package sentry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/rony4d/go-adex-validator/inter"
	"github.com/rony4d/go-adex-validator/inter/validatorid"
)

// Authorizer mints the bearer tokens of authenticated requests.
// adapter.Unlocked implements it.
type Authorizer interface {
	Whoami() validatorid.ID
	GetAuth(intendedFor validatorid.ID) (string, error)
}

// StatusError is returned for a non-2xx response.
type StatusError struct {
	URL    string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d %s", e.URL, e.Status, e.Body)
}

// Client is the API client of our own sentry.
type Client struct {
	baseURL string
	auth    Authorizer
	http    *http.Client
	log     logrus.FieldLogger
}

// NewClient returns a client of the sentry at baseURL. Each request is
// bounded by fetchTimeout on top of the caller's context.
func NewClient(baseURL string, auth Authorizer, fetchTimeout time.Duration, log logrus.FieldLogger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		auth:    auth,
		http:    &http.Client{Timeout: fetchTimeout},
		log:     log,
	}
}

func (c *Client) channelURL(channel inter.ChannelID, route string) string {
	return c.baseURL + apiPrefix + "/channel/" + channel.Hex() + route
}

// ListChannels returns every channel the sentry lists for us. The first
// page tells the page count; the remaining pages are fetched concurrently
// and the first failure aborts the others. A count above MaxPages is refused.
func (c *Client) ListChannels(ctx context.Context) ([]inter.ChannelSpec, error) {
	fetch := func(ctx context.Context, page uint64) (ChannelListResponse, error) {
		q := url.Values{}
		q.Set("page", strconv.FormatUint(page, 10))
		q.Set("validator", c.auth.Whoami().String())
		var res ChannelListResponse
		err := c.getJSON(ctx, c.baseURL+apiPrefix+"/channel/list?"+q.Encode(), false, &res)
		return res, err
	}

	first, err := fetch(ctx, 0)
	if err != nil {
		return nil, errors.Wrap(err, "list channels")
	}
	if first.TotalPages < 2 {
		return first.Channels, nil
	}

	if err := checkPages(first.TotalPages); err != nil {
		return nil, errors.Wrap(err, "list channels")
	}
	pages := make([]ChannelListResponse, first.TotalPages)
	pages[0] = first
	err = fetchPages(ctx, first.TotalPages, func(ctx context.Context, page uint64) error {
		res, err := fetch(ctx, page)
		if err != nil {
			return errors.Wrapf(err, "list channels page %d", page)
		}
		pages[page] = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	var all []inter.ChannelSpec
	for _, p := range pages {
		all = append(all, p.Channels...)
	}
	c.log.WithField("pages", first.TotalPages).WithField("channels", len(all)).Debug("Listed channels")
	return all, nil
}

// GetLatestMessage returns the newest message of one of types sent by from
// on channel, or nil if there is none.
func (c *Client) GetLatestMessage(ctx context.Context, channel inter.ChannelID, from validatorid.ID, types ...inter.MessageType) (inter.Message, error) {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	u := c.channelURL(channel, "/validator-messages/"+from.String()+"/"+strings.Join(names, "+")) + "?limit=1"

	var res ValidatorMessagesResponse
	if err := c.getJSON(ctx, u, false, &res); err != nil {
		return nil, errors.Wrapf(err, "latest %s from %s", strings.Join(names, "+"), from)
	}
	if len(res.ValidatorMessages) == 0 {
		return nil, nil
	}
	return res.ValidatorMessages[0].Msg.Message, nil
}

// GetLatestAccounting returns the newest Accounting validator stored for
// channel, or nil if it never ticked.
func (c *Client) GetLatestAccounting(ctx context.Context, channel inter.ChannelID, validator validatorid.ID) (*inter.Accounting, error) {
	msg, err := c.GetLatestMessage(ctx, channel, validator, inter.TypeAccounting)
	if err != nil || msg == nil {
		return nil, err
	}
	accounting, ok := msg.(inter.Accounting)
	if !ok {
		return nil, errors.Errorf("expected Accounting, got %s", msg.Type())
	}
	return &accounting, nil
}

// GetLastApproved returns the latest approved NewState of channel.
func (c *Client) GetLastApproved(ctx context.Context, channel inter.ChannelID) (*inter.LastApproved, error) {
	var res LastApprovedResponse
	if err := c.getJSON(ctx, c.channelURL(channel, "/last-approved"), false, &res); err != nil {
		return nil, errors.Wrap(err, "last approved")
	}
	return res.LastApproved, nil
}

// GetEventAggregates returns the aggregates of channel created after since.
// The route is authenticated with a token addressed to our own sentry.
func (c *Client) GetEventAggregates(ctx context.Context, channel inter.ChannelID, since inter.Timestamp) ([]inter.EventAggregate, error) {
	u := c.channelURL(channel, "/events-aggregates") + "?after=" + strconv.FormatUint(since.Millis(), 10)
	var res EventAggregatesResponse
	if err := c.getJSON(ctx, u, true, &res); err != nil {
		return nil, errors.Wrap(err, "event aggregates")
	}
	return res.Events, nil
}

// GetAllSpenders returns every spender of channel with its deposit, across
// all pages.
func (c *Client) GetAllSpenders(ctx context.Context, channel inter.ChannelID) (map[common.Address]inter.Spendable, error) {
	fetch := func(ctx context.Context, page uint64) (SpendersResponse, error) {
		var res SpendersResponse
		err := c.getJSON(ctx, c.channelURL(channel, "/spender/all")+"?page="+strconv.FormatUint(page, 10), true, &res)
		return res, err
	}

	first, err := fetch(ctx, 0)
	if err != nil {
		return nil, errors.Wrap(err, "spenders")
	}
	all := make(map[common.Address]inter.Spendable, len(first.Spenders))
	for addr, s := range first.Spenders {
		all[addr] = s
	}
	if first.TotalPages < 2 {
		return all, nil
	}

	if err := checkPages(first.TotalPages); err != nil {
		return nil, errors.Wrap(err, "spenders")
	}
	pages := make([]SpendersResponse, first.TotalPages)
	err = fetchPages(ctx, first.TotalPages, func(ctx context.Context, page uint64) error {
		res, err := fetch(ctx, page)
		if err != nil {
			return errors.Wrapf(err, "spenders page %d", page)
		}
		pages[page] = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, p := range pages[1:] {
		for addr, s := range p.Spenders {
			all[addr] = s
		}
	}
	return all, nil
}

const (
	// MaxPages is the largest page count a paginated route may announce.
	MaxPages = 1000
	// pageFetchers bounds the pages requested at once.
	pageFetchers = 8
)

func checkPages(total uint64) error {
	if total > MaxPages {
		return errors.Errorf("%d pages exceed the limit of %d", total, MaxPages)
	}
	return nil
}

// fetchPages calls fetch for the pages after the first, at most
// pageFetchers at a time. The first failure cancels the rest.
func fetchPages(ctx context.Context, total uint64, fetch func(ctx context.Context, page uint64) error) error {
	sem := semaphore.NewWeighted(pageFetchers)
	g, gctx := errgroup.WithContext(ctx)
	for page := uint64(1); page < total; page++ {
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		page := page
		g.Go(func() error {
			defer sem.Release(1)
			return fetch(gctx, page)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (c *Client) getJSON(ctx context.Context, u string, authenticated bool, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	if authenticated {
		token, err := c.auth.GetAuth(c.auth.Whoami())
		if err != nil {
			return errors.Wrap(err, "auth token")
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return doJSON(c.http, req, out)
}

func doJSON(client *http.Client, req *http.Request, out interface{}) error {
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{URL: req.URL.String(), Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "decode %s", req.URL.Path)
	}
	return nil
}
