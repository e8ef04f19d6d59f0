package deploy

import (
	"context"
	"fmt"
	"io"
	"sort"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
	appsv1apply "k8s.io/client-go/applyconfigurations/apps/v1"
	corev1apply "k8s.io/client-go/applyconfigurations/core/v1"
	metav1apply "k8s.io/client-go/applyconfigurations/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/utils/ptr"

	gwerrors "github.com/mcpgateway/mcpgateway/pkg/errors"
	"github.com/mcpgateway/mcpgateway/pkg/logger"
	"github.com/mcpgateway/mcpgateway/pkg/records"
)

// Pod template labels set on every workload.
const (
	appLabel              = "app"
	adapterTypeLabel      = "adapter/type"
	workloadIdentityLabel = "workload-identity/use"
)

const (
	// containerPort is where adapter containers serve streamable HTTP.
	containerPort int32 = 8000

	// logTailLines caps how much of a pod's log the gateway returns.
	logTailLines int64 = 1000

	// fieldManager identifies the gateway in server-side apply.
	fieldManager = "mcp-adapter-gateway"
)

// kubernetesManager implements Manager against the Kubernetes API.
type kubernetesManager struct {
	client    kubernetes.Interface
	namespace string
	registry  string
}

// NewKubernetesManager creates a deployment manager that reconciles
// workloads in the given namespace, pulling images from the given registry
// endpoint.
func NewKubernetesManager(client kubernetes.Interface, namespace, registry string) Manager {
	return &kubernetesManager{
		client:    client,
		namespace: namespace,
		registry:  registry,
	}
}

func (m *kubernetesManager) imageRef(record *records.AdapterRecord) string {
	if m.registry == "" {
		return fmt.Sprintf("%s:%s", record.ImageName, record.ImageVersion)
	}
	return fmt.Sprintf("%s/%s:%s", m.registry, record.ImageName, record.ImageVersion)
}

func workloadLabels(workload Workload) map[string]string {
	return map[string]string{
		appLabel:              workload.Record.Name,
		adapterTypeLabel:      string(workload.Type),
		workloadIdentityLabel: fmt.Sprintf("%t", workload.Record.UseWorkloadIdentity),
	}
}

func serviceName(name string) string {
	return name + "-service"
}

// envVars converts the record env map to a sorted list so the generated
// spec is deterministic.
func envVars(env map[string]string) []*corev1apply.EnvVarApplyConfiguration {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]*corev1apply.EnvVarApplyConfiguration, 0, len(keys))
	for _, k := range keys {
		out = append(out, corev1apply.EnvVar().WithName(k).WithValue(env[k]))
	}
	return out
}

func (m *kubernetesManager) Create(ctx context.Context, workload Workload) error {
	record := workload.Record
	labels := workloadLabels(workload)

	statefulSet := appsv1apply.StatefulSet(record.Name, m.namespace).
		WithLabels(labels).
		WithSpec(appsv1apply.StatefulSetSpec().
			WithReplicas(record.ReplicaCount).
			WithSelector(metav1apply.LabelSelector().
				WithMatchLabels(map[string]string{appLabel: record.Name})).
			WithServiceName(serviceName(record.Name)).
			WithTemplate(corev1apply.PodTemplateSpec().
				WithLabels(labels).
				WithSpec(corev1apply.PodSpec().
					WithContainers(corev1apply.Container().
						WithName(record.Name).
						WithImage(m.imageRef(record)).
						WithEnv(envVars(record.EnvironmentVariables)...).
						WithPorts(corev1apply.ContainerPort().
							WithContainerPort(containerPort))).
					WithRestartPolicy(corev1.RestartPolicyAlways))))

	// Server-side apply makes create an upsert: a pre-existing workload is
	// adopted instead of failing, which is what the control plane wants on
	// a replayed create.
	if _, err := m.client.AppsV1().StatefulSets(m.namespace).
		Apply(ctx, statefulSet, metav1.ApplyOptions{FieldManager: fieldManager, Force: true}); err != nil {
		if apierrors.IsConflict(err) || apierrors.IsAlreadyExists(err) {
			logger.Warnf("StatefulSet %s already exists, treating create as upsert: %v", record.Name, err)
		} else {
			return gwerrors.NewUpstreamFailedError(
				fmt.Sprintf("failed to apply statefulset %s", record.Name), err)
		}
	}

	if err := m.createService(ctx, workload); err != nil {
		return err
	}

	logger.Infof("Created workload %s (%s, %d replicas)", record.Name, workload.Type, record.ReplicaCount)
	return nil
}

func (m *kubernetesManager) createService(ctx context.Context, workload Workload) error {
	record := workload.Record
	port := workload.ServicePort
	if port == 0 {
		port = containerPort
	}

	service := corev1apply.Service(serviceName(record.Name), m.namespace).
		WithLabels(workloadLabels(workload)).
		WithSpec(corev1apply.ServiceSpec().
			WithSelector(map[string]string{appLabel: record.Name}).
			WithPorts(corev1apply.ServicePort().
				WithPort(port).
				WithTargetPort(intstr.FromInt32(containerPort))))

	if workload.Type == records.ResourceTypeMCP {
		// Headless: per-pod DNS names exist, so session affinity can target
		// a specific ordinal.
		service.Spec.WithClusterIP(corev1.ClusterIPNone)
	}

	if _, err := m.client.CoreV1().Services(m.namespace).
		Apply(ctx, service, metav1.ApplyOptions{FieldManager: fieldManager, Force: true}); err != nil {
		if apierrors.IsConflict(err) || apierrors.IsAlreadyExists(err) {
			logger.Warnf("Service %s already exists, treating create as upsert: %v", serviceName(record.Name), err)
			return nil
		}
		return gwerrors.NewUpstreamFailedError(
			fmt.Sprintf("failed to apply service %s", serviceName(record.Name)), err)
	}
	return nil
}

func (m *kubernetesManager) Update(ctx context.Context, workload Workload) error {
	record := workload.Record

	existing, err := m.client.AppsV1().StatefulSets(m.namespace).
		Get(ctx, record.Name, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return gwerrors.NewNotFoundError(
				fmt.Sprintf("statefulset %s not found", record.Name), err)
		}
		return gwerrors.NewUpstreamFailedError(
			fmt.Sprintf("failed to get statefulset %s", record.Name), err)
	}

	// Patch only the deployment-relevant fields. Identity labels and the
	// object itself are never recreated.
	existing.Spec.Replicas = ptr.To(record.ReplicaCount)
	if len(existing.Spec.Template.Spec.Containers) > 0 {
		container := &existing.Spec.Template.Spec.Containers[0]
		container.Image = m.imageRef(record)
		container.Env = envVarsCore(record.EnvironmentVariables)
	}

	if _, err := m.client.AppsV1().StatefulSets(m.namespace).
		Update(ctx, existing, metav1.UpdateOptions{FieldManager: fieldManager}); err != nil {
		return gwerrors.NewUpstreamFailedError(
			fmt.Sprintf("failed to update statefulset %s", record.Name), err)
	}

	logger.Infof("Updated workload %s", record.Name)
	return nil
}

func envVarsCore(env map[string]string) []corev1.EnvVar {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]corev1.EnvVar, 0, len(keys))
	for _, k := range keys {
		out = append(out, corev1.EnvVar{Name: k, Value: env[k]})
	}
	return out
}

func (m *kubernetesManager) Delete(ctx context.Context, name string) error {
	err := m.client.AppsV1().StatefulSets(m.namespace).
		Delete(ctx, name, metav1.DeleteOptions{})
	if err != nil && !apierrors.IsNotFound(err) {
		return gwerrors.NewUpstreamFailedError(
			fmt.Sprintf("failed to delete statefulset %s", name), err)
	}
	if apierrors.IsNotFound(err) {
		logger.Infof("StatefulSet %s already gone", name)
	}

	err = m.client.CoreV1().Services(m.namespace).
		Delete(ctx, serviceName(name), metav1.DeleteOptions{})
	if err != nil && !apierrors.IsNotFound(err) {
		return gwerrors.NewUpstreamFailedError(
			fmt.Sprintf("failed to delete service %s", serviceName(name)), err)
	}
	if apierrors.IsNotFound(err) {
		logger.Infof("Service %s already gone", serviceName(name))
	}

	logger.Infof("Deleted workload %s", name)
	return nil
}

func (m *kubernetesManager) Status(ctx context.Context, name string) (*WorkloadStatus, error) {
	statefulSet, err := m.client.AppsV1().StatefulSets(m.namespace).
		Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return nil, gwerrors.NewNotFoundError(
				fmt.Sprintf("statefulset %s not found", name), err)
		}
		return nil, gwerrors.NewUpstreamFailedError(
			fmt.Sprintf("failed to get statefulset %s", name), err)
	}

	desired := int32(0)
	if statefulSet.Spec.Replicas != nil {
		desired = *statefulSet.Spec.Replicas
	}

	image := "Unknown"
	if len(statefulSet.Spec.Template.Spec.Containers) > 0 {
		image = statefulSet.Spec.Template.Spec.Containers[0].Image
	}

	ready := statefulSet.Status.ReadyReplicas
	replicaStatus := fmt.Sprintf("Degraded: %d/%d ready", ready, desired)
	if desired > 0 && ready == desired {
		replicaStatus = "Healthy"
	}

	return &WorkloadStatus{
		ReadyReplicas:     ready,
		UpdatedReplicas:   statefulSet.Status.UpdatedReplicas,
		AvailableReplicas: statefulSet.Status.AvailableReplicas,
		Image:             image,
		ReplicaStatus:     replicaStatus,
	}, nil
}

func (m *kubernetesManager) Logs(ctx context.Context, name string, ordinal int) (string, error) {
	podName := fmt.Sprintf("%s-%d", name, ordinal)

	req := m.client.CoreV1().Pods(m.namespace).GetLogs(podName, &corev1.PodLogOptions{
		TailLines: ptr.To(logTailLines),
	})
	stream, err := req.Stream(ctx)
	if err != nil {
		if apierrors.IsNotFound(err) {
			return "", gwerrors.NewNotFoundError(
				fmt.Sprintf("pod %s not found", podName), err)
		}
		return "", gwerrors.NewUpstreamFailedError(
			fmt.Sprintf("failed to stream logs for pod %s", podName), err)
	}
	defer stream.Close()

	logBytes, err := io.ReadAll(stream)
	if err != nil {
		return "", gwerrors.NewUpstreamFailedError(
			fmt.Sprintf("failed to read logs for pod %s", podName), err)
	}
	return string(logBytes), nil
}
