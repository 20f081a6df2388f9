package smb1

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ineffectivecoder/cifsgoose/pkg/debug"
	"github.com/ineffectivecoder/cifsgoose/pkg/smb1/trans"
)

// DfsReferral resolves path through the DFS service of the tree's server.
// Results are cached per path for the shorter of the configured TTL and
// the referral TTL. A zero TTL disables the cache. Each call returns its
// own copy.
func (t *Tree) DfsReferral(ctx context.Context, path string) (*trans.GetDfsReferral, error) {
	c := t.client
	key := strings.ToLower(path)
	if v, ok := c.dfs.Get(key); ok {
		debug.WithFields(debug.Fields{"path": path}, "dfs referral cache hit")
		return v.(*trans.GetDfsReferral).Clone(), nil
	}

	g := trans.NewGetDfsReferral(path)
	if _, err := c.Transact(ctx, t.TID, g); err != nil {
		return nil, fmt.Errorf("dfs referral %s: %w", path, err)
	}

	ttl := c.cfg.DfsTTL
	if ttl <= 0 {
		return g, nil
	}
	for _, r := range g.Referrals {
		if d := time.Duration(r.TTL) * time.Second; d > 0 && d < ttl {
			ttl = d
		}
	}
	c.dfs.Set(key, g.Clone(), ttl)
	return g, nil
}

// FlushDfs drops every cached referral.
func (c *Client) FlushDfs() {
	c.dfs.Flush()
}
