package deploy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
	"k8s.io/utils/ptr"

	gwerrors "github.com/mcpgateway/mcpgateway/pkg/errors"
	"github.com/mcpgateway/mcpgateway/pkg/records"
)

const testNamespace = "adapter"

func testRecord() *records.AdapterRecord {
	return &records.AdapterRecord{
		Name:         "demo",
		ImageName:    "demo-server",
		ImageVersion: "1.0.0",
		ReplicaCount: 2,
		EnvironmentVariables: map[string]string{
			"B_VAR": "2",
			"A_VAR": "1",
		},
		UseWorkloadIdentity: true,
	}
}

func TestCreateMCPWorkload(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	client := fake.NewClientset()
	manager := NewKubernetesManager(client, testNamespace, "registry.example.com")

	err := manager.Create(ctx, Workload{Record: testRecord(), Type: records.ResourceTypeMCP})
	require.NoError(t, err)

	sts, err := client.AppsV1().StatefulSets(testNamespace).Get(ctx, "demo", metav1.GetOptions{})
	require.NoError(t, err)

	assert.Equal(t, int32(2), *sts.Spec.Replicas)
	assert.Equal(t, "demo-service", sts.Spec.ServiceName)
	assert.Equal(t, map[string]string{
		"app":                   "demo",
		"adapter/type":          "mcp",
		"workload-identity/use": "true",
	}, sts.Spec.Template.Labels)

	require.Len(t, sts.Spec.Template.Spec.Containers, 1)
	container := sts.Spec.Template.Spec.Containers[0]
	assert.Equal(t, "registry.example.com/demo-server:1.0.0", container.Image)
	require.Len(t, container.Ports, 1)
	assert.Equal(t, int32(8000), container.Ports[0].ContainerPort)
	// Env is emitted in sorted key order.
	assert.Equal(t, []corev1.EnvVar{
		{Name: "A_VAR", Value: "1"},
		{Name: "B_VAR", Value: "2"},
	}, container.Env)

	service, err := client.CoreV1().Services(testNamespace).Get(ctx, "demo-service", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, corev1.ClusterIPNone, service.Spec.ClusterIP)
	assert.Equal(t, map[string]string{"app": "demo"}, service.Spec.Selector)
	require.Len(t, service.Spec.Ports, 1)
	assert.Equal(t, int32(8000), service.Spec.Ports[0].Port)
}

func TestCreateToolWorkloadService(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	client := fake.NewClientset()
	manager := NewKubernetesManager(client, testNamespace, "")

	err := manager.Create(ctx, Workload{
		Record:      testRecord(),
		Type:        records.ResourceTypeTool,
		ServicePort: 8443,
	})
	require.NoError(t, err)

	service, err := client.CoreV1().Services(testNamespace).Get(ctx, "demo-service", metav1.GetOptions{})
	require.NoError(t, err)
	// Tool services route by name, so they keep a cluster IP.
	assert.NotEqual(t, corev1.ClusterIPNone, service.Spec.ClusterIP)
	require.Len(t, service.Spec.Ports, 1)
	assert.Equal(t, int32(8443), service.Spec.Ports[0].Port)
	assert.Equal(t, int32(8000), service.Spec.Ports[0].TargetPort.IntVal)

	sts, err := client.AppsV1().StatefulSets(testNamespace).Get(ctx, "demo", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "tool", sts.Spec.Template.Labels["adapter/type"])
	// Without a registry the image reference is used as-is.
	assert.Equal(t, "demo-server:1.0.0", sts.Spec.Template.Spec.Containers[0].Image)
}

func TestCreateIsUpsert(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	client := fake.NewClientset()
	manager := NewKubernetesManager(client, testNamespace, "")

	workload := Workload{Record: testRecord(), Type: records.ResourceTypeMCP}
	require.NoError(t, manager.Create(ctx, workload))

	// Replaying the create must not fail.
	workload.Record.ReplicaCount = 5
	require.NoError(t, manager.Create(ctx, workload))

	sts, err := client.AppsV1().StatefulSets(testNamespace).Get(ctx, "demo", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, int32(5), *sts.Spec.Replicas)
}

func TestUpdate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	client := fake.NewClientset()
	manager := NewKubernetesManager(client, testNamespace, "registry.example.com")

	require.NoError(t, manager.Create(ctx, Workload{Record: testRecord(), Type: records.ResourceTypeMCP}))

	updated := testRecord()
	updated.ImageVersion = "1.1.0"
	updated.ReplicaCount = 4
	updated.EnvironmentVariables = map[string]string{"ONLY": "x"}

	require.NoError(t, manager.Update(ctx, Workload{Record: updated, Type: records.ResourceTypeMCP}))

	sts, err := client.AppsV1().StatefulSets(testNamespace).Get(ctx, "demo", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, int32(4), *sts.Spec.Replicas)
	container := sts.Spec.Template.Spec.Containers[0]
	assert.Equal(t, "registry.example.com/demo-server:1.1.0", container.Image)
	assert.Equal(t, []corev1.EnvVar{{Name: "ONLY", Value: "x"}}, container.Env)
	// The identity labels survive updates untouched.
	assert.Equal(t, "mcp", sts.Spec.Template.Labels["adapter/type"])
}

func TestUpdateMissingWorkload(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	manager := NewKubernetesManager(fake.NewClientset(), testNamespace, "")

	err := manager.Update(ctx, Workload{Record: testRecord(), Type: records.ResourceTypeMCP})
	require.Error(t, err)
	assert.True(t, gwerrors.IsNotFound(err))
}

func TestDeleteToleratesAbsent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	manager := NewKubernetesManager(fake.NewClientset(), testNamespace, "")
	assert.NoError(t, manager.Delete(ctx, "never-created"))
}

func TestDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	client := fake.NewClientset()
	manager := NewKubernetesManager(client, testNamespace, "")

	require.NoError(t, manager.Create(ctx, Workload{Record: testRecord(), Type: records.ResourceTypeMCP}))
	require.NoError(t, manager.Delete(ctx, "demo"))

	_, err := client.AppsV1().StatefulSets(testNamespace).Get(ctx, "demo", metav1.GetOptions{})
	assert.Error(t, err)
	_, err = client.CoreV1().Services(testNamespace).Get(ctx, "demo-service", metav1.GetOptions{})
	assert.Error(t, err)
}

func statefulSetWithStatus(desired, ready int32) *appsv1.StatefulSet {
	return &appsv1.StatefulSet{
		ObjectMeta: metav1.ObjectMeta{Namespace: testNamespace, Name: "demo"},
		Spec: appsv1.StatefulSetSpec{
			Replicas: ptr.To(desired),
			Template: corev1.PodTemplateSpec{
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{{Name: "demo", Image: "demo-server:1.0.0"}},
				},
			},
		},
		Status: appsv1.StatefulSetStatus{
			ReadyReplicas:     ready,
			UpdatedReplicas:   ready,
			AvailableReplicas: ready,
		},
	}
}

func TestStatus(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("healthy", func(t *testing.T) {
		t.Parallel()
		client := fake.NewClientset(statefulSetWithStatus(2, 2))
		manager := NewKubernetesManager(client, testNamespace, "")

		status, err := manager.Status(ctx, "demo")
		require.NoError(t, err)
		assert.Equal(t, "Healthy", status.ReplicaStatus)
		assert.Equal(t, int32(2), status.ReadyReplicas)
		assert.Equal(t, "demo-server:1.0.0", status.Image)
	})

	t.Run("degraded", func(t *testing.T) {
		t.Parallel()
		client := fake.NewClientset(statefulSetWithStatus(3, 1))
		manager := NewKubernetesManager(client, testNamespace, "")

		status, err := manager.Status(ctx, "demo")
		require.NoError(t, err)
		assert.Equal(t, "Degraded: 1/3 ready", status.ReplicaStatus)
	})

	t.Run("zero desired is degraded", func(t *testing.T) {
		t.Parallel()
		client := fake.NewClientset(statefulSetWithStatus(0, 0))
		manager := NewKubernetesManager(client, testNamespace, "")

		status, err := manager.Status(ctx, "demo")
		require.NoError(t, err)
		assert.Equal(t, "Degraded: 0/0 ready", status.ReplicaStatus)
	})

	t.Run("missing image reads unknown", func(t *testing.T) {
		t.Parallel()
		sts := statefulSetWithStatus(1, 1)
		sts.Spec.Template.Spec.Containers = nil
		client := fake.NewClientset(sts)
		manager := NewKubernetesManager(client, testNamespace, "")

		status, err := manager.Status(ctx, "demo")
		require.NoError(t, err)
		assert.Equal(t, "Unknown", status.Image)
	})

	t.Run("missing workload", func(t *testing.T) {
		t.Parallel()
		manager := NewKubernetesManager(fake.NewClientset(), testNamespace, "")

		_, err := manager.Status(ctx, "absent")
		require.Error(t, err)
		assert.True(t, gwerrors.IsNotFound(err))
	})
}

func TestLogsTargetsOrdinalPod(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	client := fake.NewClientset()
	manager := NewKubernetesManager(client, testNamespace, "")

	logs, err := manager.Logs(ctx, "demo", 2)
	require.NoError(t, err)
	// The fake clientset serves a fixed body; the interesting part is the
	// request target.
	assert.Equal(t, "fake logs", logs)

	var sawPodLogRequest bool
	for _, action := range client.Actions() {
		if action.GetResource().Resource == "pods" && action.GetSubresource() == "log" {
			sawPodLogRequest = true
		}
	}
	assert.True(t, sawPodLogRequest)
}
