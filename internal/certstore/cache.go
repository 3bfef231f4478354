package certstore

import (
	"container/list"
	"crypto/rsa"
	"crypto/x509"
	"strings"
	"sync"
)

// maxNumCerts bounds the in-memory cert cache (original
// server_store.hpp::max_num_certs).
const maxNumCerts = 100

// MemoryCertificate is a minted leaf certificate plus the private key that
// serves it (original memory_certificate.hpp). Every minted leaf shares the
// CA's own public key, so Key is always the CA's private key — it is the
// only key that matches.
type MemoryCertificate struct {
	Cert    *x509.Certificate
	CertDER []byte
	Key     *rsa.PrivateKey
	Names   []string
}

// Interface is the minting key used for cache lookup and generation: two
// requests are cache-equivalent when any of their CN/SAN asterisk-forms
// intersect (spec §3, "Certificate interface").
type Interface struct {
	CommonName   string
	SANs         []string
	Organization string
}

type certCache struct {
	mu       sync.Mutex
	max      int
	order    *list.List // front = oldest
	elements map[string]*list.Element
	entries  map[string]MemoryCertificate
}

type cacheEntry struct {
	key string
}

func newCertCache(max int) *certCache {
	return &certCache{
		max:      max,
		order:    list.New(),
		elements: make(map[string]*list.Element),
		entries:  make(map[string]MemoryCertificate),
	}
}

// asteriskForms returns domain plus a wildcard form for every suffix after
// the first label: "foo.bar.baz" -> {"foo.bar.baz", "*.bar.baz", "*.baz"}
// (original server_store.cpp::get_asterisk_forms).
func asteriskForms(domain string) []string {
	forms := []string{domain}
	rest := domain
	for {
		idx := strings.IndexByte(rest, '.')
		if idx < 0 {
			break
		}
		rest = rest[idx+1:]
		forms = append(forms, "*."+rest)
	}
	return forms
}

// Lookup reports whether a cached certificate already satisfies iface,
// without minting one. The flow state machine uses this to decide whether
// an ssl_certificate.create interceptor fires alongside ssl_certificate.search
// (spec §4.F: search precedes every lookup, create only when minting occurs).
func (s *Store) Lookup(iface Interface) (MemoryCertificate, bool) {
	return s.cache.lookup(iface)
}

// lookup returns the first cached certificate whose key set intersects the
// asterisk-forms of iface's CN and SANs.
func (c *certCache) lookup(iface Interface) (MemoryCertificate, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, key := range lookupKeys(iface) {
		if cert, ok := c.entries[key]; ok {
			return cert, true
		}
	}
	return MemoryCertificate{}, false
}

func lookupKeys(iface Interface) []string {
	var keys []string
	if iface.CommonName != "" {
		keys = append(keys, asteriskForms(iface.CommonName)...)
	}
	for _, san := range iface.SANs {
		keys = append(keys, asteriskForms(san)...)
	}
	return keys
}

// insert stores cert under key, evicting the oldest entry by insertion order
// once the cache exceeds its bound (original server_store.cpp::insert, a
// std::queue-backed FIFO; here a container/list serves the same role).
func (c *certCache) insert(key string, cert MemoryCertificate) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists {
		elem := c.order.PushBack(cacheEntry{key: key})
		c.elements[key] = elem
	}
	c.entries[key] = cert

	for len(c.entries) > c.max {
		oldest := c.order.Front()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		oldestKey := oldest.Value.(cacheEntry).key
		delete(c.entries, oldestKey)
		delete(c.elements, oldestKey)
	}
}

// CacheLen reports how many minted leaf certificates are currently cached,
// for the admin/metrics surface.
func (s *Store) CacheLen() int {
	return s.cache.len()
}

func (c *certCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
