package identity

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"os"

	mapset "github.com/deckarep/golang-set/v2"
	"gopkg.in/yaml.v3"
)

var defaultPool = []string{
	DefaultUserAgent,
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0",
}

// ErrEmptyPool is returned when a pool file yields no usable entries.
var ErrEmptyPool = errors.New("identity pool is empty")

// Pool is a de-duplicated list of identity strings to pick from.
type Pool struct {
	entries []string
}

// DefaultPool returns the built-in pool of desktop browser identities.
func DefaultPool() *Pool {
	p, _ := NewPool(defaultPool)
	return p
}

// NewPool builds a pool from entries, dropping invalid and repeated values
// while keeping the first occurrence order.
func NewPool(entries []string) (*Pool, error) {
	seen := mapset.NewThreadUnsafeSet[string]()
	p := &Pool{}
	for _, e := range entries {
		if Validate(e) != nil || !seen.Add(e) {
			continue
		}
		p.entries = append(p.entries, e)
	}
	if len(p.entries) == 0 {
		return nil, ErrEmptyPool
	}
	return p, nil
}

// LoadPool reads a YAML or JSON array of identity strings.
func LoadPool(path string) (*Pool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading pool file: %w", err)
	}
	var entries []string
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing pool file %s: %w", path, err)
	}
	p, err := NewPool(entries)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Len returns the number of entries.
func (p *Pool) Len() int {
	return len(p.entries)
}

// Entries returns a copy of the pool contents.
func (p *Pool) Entries() []string {
	out := make([]string, len(p.entries))
	copy(out, p.entries)
	return out
}

// Pick returns a uniformly random entry.
func (p *Pool) Pick() string {
	return p.entries[rand.IntN(len(p.entries))]
}

// Randomize sets s to a random entry of p and returns it.
func Randomize(s *Store, p *Pool) (string, error) {
	ua := p.Pick()
	if err := s.Set(ua); err != nil {
		return "", err
	}
	return ua, nil
}
