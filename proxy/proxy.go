package proxy

import (
	"errors"
	"fmt"
	"net/url"
	"sync/atomic"
)

// ProxyFunc returns the proxy the next browser session should be launched behind.
type ProxyFunc func() (*url.URL, error)

type roundRobinSwitcher struct {
	proxyURLs []*url.URL
	index     uint32
}

func (r *roundRobinSwitcher) GetProxy() (*url.URL, error) {
	index := atomic.AddUint32(&r.index, 1) - 1
	u := r.proxyURLs[index%uint32(len(r.proxyURLs))]
	return u, nil
}

func RoundRobinSwitcher(ProxyURLs ...string) (ProxyFunc, error) {
	if len(ProxyURLs) < 1 {
		return nil, errors.New("proxy url list is empty")
	}
	var urls []*url.URL
	for _, u := range ProxyURLs {
		parsedU, err := url.Parse(u)
		if err != nil || parsedU.Host == "" {
			continue
		}
		urls = append(urls, parsedU)
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("no valid proxy url in %v", ProxyURLs)
	}
	return (&roundRobinSwitcher{proxyURLs: urls}).GetProxy, nil
}
