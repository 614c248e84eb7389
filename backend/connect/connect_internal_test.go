package connect

import (
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/gocql/gocql"

	"github.com/stokaro/treemig/backend/cqlbackend"
)

func TestMergeCassandra(t *testing.T) {
	c := qt.New(t)

	cfg, err := cqlbackend.ParseConfig("cassandra://node1,node2/apdb?timeout=5m")
	c.Assert(err, qt.IsNil)

	mergeCassandra(cfg, Options{
		Namespace: "apdb_test",
		Cassandra: cqlbackend.Config{
			ConnectTimeout: 30 * time.Second,
			Consistency:    gocql.Quorum,
		},
	})

	c.Assert(cfg.Hosts, qt.DeepEquals, []string{"node1", "node2"})
	c.Assert(cfg.Keyspace, qt.Equals, "apdb_test")
	c.Assert(cfg.RequestTimeout, qt.Equals, 5*time.Minute)
	c.Assert(cfg.ConnectTimeout, qt.Equals, 30*time.Second)
	c.Assert(cfg.Consistency, qt.Equals, gocql.Quorum)
	c.Assert(cfg.Username, qt.Equals, "")
}
