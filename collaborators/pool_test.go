package collaborators

import (
	"testing"
	"time"
)

func TestConnectionPool_ClientIsCachedPerName(t *testing.T) {
	pool := NewConnectionPool(DefaultPoolConfig())

	c1 := pool.Client("directory", 5*time.Second)
	c2 := pool.Client("directory", 5*time.Second)
	if c1 != c2 {
		t.Fatal("expected same *http.Client instance for repeated calls with the same name")
	}

	c3 := pool.Client("payments", 5*time.Second)
	if c1 == c3 {
		t.Fatal("expected distinct clients for distinct collaborator names")
	}
}

func TestConnectionPool_CloseDoesNotPanic(t *testing.T) {
	pool := NewConnectionPool(DefaultPoolConfig())
	pool.Client("storage", time.Second)
	pool.Close()
}
