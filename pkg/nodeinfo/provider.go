// Package nodeinfo resolves a workload name to the current set of replica
// endpoints by reading the orchestrator's endpoint objects.
package nodeinfo

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	gwerrors "github.com/mcpgateway/mcpgateway/pkg/errors"
	"github.com/mcpgateway/mcpgateway/pkg/logger"
)

// defaultCacheTTL bounds endpoint staleness. A stale endpoint surfaces as a
// connect error at the proxy, which treats the session as broken, so a
// short TTL is enough.
const defaultCacheTTL = 10 * time.Second

// ReplicaEndpoint is one addressable replica of a workload, derived from
// the orchestrator and never persisted.
type ReplicaEndpoint struct {
	// WorkloadName is the stateful set the replica belongs to.
	WorkloadName string

	// Ordinal is the replica's index within the set.
	Ordinal int

	// Address is scheme-qualified, e.g. http://host:port.
	Address string
}

// Provider resolves workload names to replica endpoints.
type Provider interface {
	// ResolveEndpoints returns the workload's replica endpoints ordered by
	// ordinal. Fails with a NotFound error when no endpoints exist.
	ResolveEndpoints(ctx context.Context, workloadName string) ([]ReplicaEndpoint, error)
}

type cacheEntry struct {
	endpoints []ReplicaEndpoint
	expiresAt time.Time
}

// kubernetesProvider lists the Endpoints object of the workload's headless
// companion service. Results are cached per process with a short TTL.
type kubernetesProvider struct {
	client    kubernetes.Interface
	namespace string

	mu    sync.RWMutex
	cache map[string]cacheEntry
	ttl   time.Duration
}

// NewKubernetesProvider creates a provider that reads endpoint objects in
// the given namespace.
func NewKubernetesProvider(client kubernetes.Interface, namespace string) Provider {
	return &kubernetesProvider{
		client:    client,
		namespace: namespace,
		cache:     make(map[string]cacheEntry),
		ttl:       defaultCacheTTL,
	}
}

func (p *kubernetesProvider) ResolveEndpoints(ctx context.Context, workloadName string) ([]ReplicaEndpoint, error) {
	if cached, ok := p.cached(workloadName); ok {
		return cached, nil
	}

	serviceName := workloadName + "-service"
	endpoints, err := p.client.CoreV1().Endpoints(p.namespace).Get(ctx, serviceName, metav1.GetOptions{})
	if err != nil {
		return nil, gwerrors.NewNotFoundError(
			fmt.Sprintf("no endpoints for workload %s", workloadName), err)
	}

	replicas := make([]ReplicaEndpoint, 0)
	for _, subset := range endpoints.Subsets {
		if len(subset.Ports) == 0 {
			continue
		}
		port := subset.Ports[0].Port
		for _, address := range subset.Addresses {
			host := address.IP
			ordinal := 0
			if address.Hostname != "" {
				// Pods of a stateful set resolve through the headless
				// service: <pod>.<service>.<ns>.svc.cluster.local. Prefer
				// that stable name over the pod IP.
				host = fmt.Sprintf("%s.%s.%s.svc.cluster.local",
					address.Hostname, serviceName, p.namespace)
				ordinal = ordinalFromPodName(address.Hostname)
			}
			replicas = append(replicas, ReplicaEndpoint{
				WorkloadName: workloadName,
				Ordinal:      ordinal,
				Address:      fmt.Sprintf("http://%s:%d", host, port),
			})
		}
	}

	if len(replicas) == 0 {
		return nil, gwerrors.NewNotFoundError(
			fmt.Sprintf("no ready endpoints for workload %s", workloadName), nil)
	}

	sort.Slice(replicas, func(i, j int) bool { return replicas[i].Ordinal < replicas[j].Ordinal })

	p.store(workloadName, replicas)
	logger.Debugf("Resolved %d endpoints for workload %s", len(replicas), workloadName)
	return replicas, nil
}

func (p *kubernetesProvider) cached(workloadName string) ([]ReplicaEndpoint, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	entry, ok := p.cache[workloadName]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.endpoints, true
}

func (p *kubernetesProvider) store(workloadName string, endpoints []ReplicaEndpoint) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache[workloadName] = cacheEntry{
		endpoints: endpoints,
		expiresAt: time.Now().Add(p.ttl),
	}
}

// ordinalFromPodName extracts the stateful set ordinal from a pod name like
// "myadapter-2". Unparseable names sort first.
func ordinalFromPodName(podName string) int {
	idx := strings.LastIndex(podName, "-")
	if idx < 0 || idx == len(podName)-1 {
		return 0
	}
	ordinal, err := strconv.Atoi(podName[idx+1:])
	if err != nil {
		return 0
	}
	return ordinal
}
