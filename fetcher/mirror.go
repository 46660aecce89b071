package fetcher

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// Mirror is one candidate base URL discovered for a repository, per §4.5's
// SRV/HTTP mirror discovery and §3's Repository.mirror_type.
type Mirror struct {
	Host string
	Port int
}

// URL renders m against the scheme and path of template.
func (m Mirror) URL(template *url.URL) string {
	u := *template
	if m.Port != 0 {
		u.Host = fmt.Sprintf("%s:%d", m.Host, m.Port)
	} else {
		u.Host = m.Host
	}
	return u.String()
}

// DiscoverSRV issues a DNS SRV lookup for "_scheme._tcp.host" and returns
// candidates ordered by (priority asc, weight-shuffled), per §4.5's "SRV
// discovery". scheme should be the unprefixed transport ("http", "https");
// host is the repository's configured host.
func DiscoverSRV(scheme, host string) ([]Mirror, error) {
	_, addrs, err := net.LookupSRV(scheme, "tcp", host)
	if err != nil {
		return nil, fmt.Errorf("fetcher: srv lookup for _%s._tcp.%s: %w", scheme, host, err)
	}
	// net.LookupSRV already returns addrs sorted by priority then
	// weight-shuffled within a priority tier (per RFC 2782 §"Usage rules"
	// as implemented by the Go resolver), so no further sort is needed;
	// it is re-sorted here defensively in case a custom resolver is
	// swapped in that doesn't guarantee that ordering.
	sort.SliceStable(addrs, func(i, j int) bool { return addrs[i].Priority < addrs[j].Priority })
	out := make([]Mirror, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, Mirror{Host: strings.TrimSuffix(a.Target, "."), Port: int(a.Port)})
	}
	return out, nil
}

// shuffleWithinPriority groups entries with equal Priority and shuffles
// each group, the "weight-shuffled" half of §4.5's ordering rule — kept as
// a separate helper so callers who built their own Mirror list (e.g. from
// a config file) can apply the same randomization net.LookupSRV gives for
// free. priorities[i] is the priority of mirrors[i]; a group is a run of
// adjacent entries with equal priority, so the list keeps its priority order.
func shuffleWithinPriority(mirrors []Mirror, priorities []int) {
	for start := 0; start < len(mirrors) && start < len(priorities); {
		end := start + 1
		for end < len(mirrors) && end < len(priorities) && priorities[end] == priorities[start] {
			end++
		}
		group := mirrors[start:end]
		rand.Shuffle(len(group), func(i, j int) {
			group[i], group[j] = group[j], group[i]
		})
		start = end
	}
}

// DiscoverHTTP issues a GET of rootURL and parses "URL: <url>" lines out of
// the response body, per §4.5's "HTTP mirror discovery".
func DiscoverHTTP(ctx context.Context, client *http.Client, rootURL string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rootURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetcher: mirror discovery GET %s: HTTP status %s", rootURL, resp.Status)
	}
	return parseMirrorLines(resp.Body)
}

func parseMirrorLines(r io.Reader) ([]string, error) {
	var urls []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if rest, ok := strings.CutPrefix(line, "URL:"); ok {
			urls = append(urls, strings.TrimSpace(rest))
		}
	}
	return urls, sc.Err()
}
