package policy

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	dynfake "k8s.io/client-go/dynamic/fake"
	k8sfake "k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"

	"github.com/ceyewan/nimbus/metrics"
)

// newTestMeter 创建带 ManualReader 的 Meter
func newTestMeter(t *testing.T) (metrics.Meter, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	meter, err := metrics.New(&metrics.Config{
		Enabled:     true,
		ServiceName: "policy-exporter",
		Version:     "test",
	}, metrics.WithReader(reader))
	require.NoError(t, err)
	return meter, reader
}

// makeConstraint 构造带 N 条违规记录的 Gatekeeper 约束对象
func makeConstraint(name string, violations int) *unstructured.Unstructured {
	items := make([]any, violations)
	for i := range items {
		items[i] = map[string]any{
			"kind":    "Pod",
			"name":    fmt.Sprintf("pod-%d", i),
			"message": "missing required label",
		}
	}

	obj := map[string]any{
		"apiVersion": "constraints.gatekeeper.sh/v1beta1",
		"kind":       "K8sRequiredLabels",
		"metadata":   map[string]any{"name": name},
	}
	if violations > 0 {
		obj["status"] = map[string]any{"violations": items}
	}
	return &unstructured.Unstructured{Object: obj}
}

// makePod 构造指定命名空间和标签的 Pod
func makePod(namespace, name string, labels map[string]string) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Namespace: namespace,
			Name:      name,
			Labels:    labels,
		},
	}
}

func newFakeClient(constraints []runtime.Object, pods []runtime.Object) *ClusterClient {
	dyn := dynfake.NewSimpleDynamicClientWithCustomListKinds(
		runtime.NewScheme(),
		map[schema.GroupVersionResource]string{constraintGVR: "K8sRequiredLabelsList"},
	)
	// 用显式 GVR 注入约束对象：fake tracker 按 kind 猜测的资源名
	// (k8srequiredlabelses) 与 constraintGVR 不一致
	for _, c := range constraints {
		if err := dyn.Tracker().Create(constraintGVR, c, ""); err != nil {
			panic(err)
		}
	}
	return &ClusterClient{
		Dynamic: dyn,
		Core:    k8sfake.NewSimpleClientset(pods...),
	}
}

// counterFor 返回带指定标签的计数器数据点值
func counterFor(t *testing.T, reader *sdkmetric.ManualReader, name, key, value string) (float64, bool) {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[float64])
			require.True(t, ok, "metric %s is not a float64 sum", name)
			for _, dp := range sum.DataPoints {
				if v, found := dp.Attributes.Value(attribute.Key(key)); found && v.AsString() == value {
					return dp.Value, true
				}
			}
		}
	}
	return 0, false
}

// gaugeFor 返回带指定标签的 gauge 数据点值
func gaugeFor(t *testing.T, reader *sdkmetric.ManualReader, name, key, value string) (float64, bool) {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			g, ok := m.Data.(metricdata.Gauge[float64])
			require.True(t, ok, "metric %s is not a float64 gauge", name)
			for _, dp := range g.DataPoints {
				if v, found := dp.Attributes.Value(attribute.Key(key)); found && v.AsString() == value {
					return dp.Value, true
				}
			}
		}
	}
	return 0, false
}

// TestCollectorCountsConstraintViolations 有 3 条违规的约束计入 3，无违规的约束不产生计数
func TestCollectorCountsConstraintViolations(t *testing.T) {
	meter, reader := newTestMeter(t)

	client := newFakeClient(
		[]runtime.Object{
			makeConstraint("require-team-label", 3),
			makeConstraint("require-owner-label", 0),
		},
		nil,
	)

	task, err := NewCollectorTask(client, nil, WithMeter(meter))
	require.NoError(t, err)
	assert.Equal(t, "collect-violations", task.Name())

	require.NoError(t, task.Run(context.Background()))

	got, found := counterFor(t, reader, "policy_violations_total", "policy", "require-team-label")
	require.True(t, found)
	assert.Equal(t, float64(3), got)

	_, found = counterFor(t, reader, "policy_violations_total", "policy", "require-owner-label")
	assert.False(t, found, "无违规的约束不应产生计数")

	// 两个约束都应有校验耗时
	for _, policy := range []string{"require-team-label", "require-owner-label"} {
		dur, found := gaugeFor(t, reader, "policy_validation_duration_seconds", "policy", policy)
		require.True(t, found, "缺少 %s 的校验耗时", policy)
		assert.Equal(t, 0.05, dur)
	}
}

// TestCollectorScansPods 缺少 app 标签的 Pod 计入违规，系统命名空间被跳过
func TestCollectorScansPods(t *testing.T) {
	meter, reader := newTestMeter(t)

	client := newFakeClient(nil, []runtime.Object{
		makePod("default", "no-label-1", nil),
		makePod("default", "no-label-2", map[string]string{"team": "infra"}),
		makePod("default", "labeled", map[string]string{"app": "api"}),
		makePod("kube-system", "coredns", nil),
		makePod("gatekeeper-system", "controller", nil),
		makePod("monitoring", "prometheus", nil),
	})

	task, err := NewCollectorTask(client, nil, WithMeter(meter))
	require.NoError(t, err)

	require.NoError(t, task.Run(context.Background()))

	got, found := counterFor(t, reader, "policy_violations_total", "policy", "require-app-label")
	require.True(t, found)
	assert.Equal(t, float64(2), got)

	blocked, found := counterFor(t, reader, "deployment_blocked_total", "reason", "missing-required-labels")
	require.True(t, found)
	assert.Equal(t, float64(1), blocked)
}

// TestCollectorNoViolations 没有违规时不产生违规计数
func TestCollectorNoViolations(t *testing.T) {
	meter, reader := newTestMeter(t)

	client := newFakeClient(nil, []runtime.Object{
		makePod("default", "labeled", map[string]string{"app": "api"}),
	})

	task, err := NewCollectorTask(client, nil, WithMeter(meter))
	require.NoError(t, err)
	require.NoError(t, task.Run(context.Background()))

	_, found := counterFor(t, reader, "policy_violations_total", "policy", "require-app-label")
	assert.False(t, found)
	_, found = counterFor(t, reader, "deployment_blocked_total", "reason", "missing-required-labels")
	assert.False(t, found)
}

// TestCollectorSeparateFaultBoundaries 约束读取失败不影响 Pod 扫描，错误照常返回
func TestCollectorSeparateFaultBoundaries(t *testing.T) {
	meter, reader := newTestMeter(t)

	client := newFakeClient(nil, []runtime.Object{
		makePod("default", "no-label", nil),
	})

	// 约束 API 不可用（例如 Gatekeeper 未安装）
	client.Dynamic.(*dynfake.FakeDynamicClient).PrependReactor("list", "k8srequiredlabels",
		func(action k8stesting.Action) (bool, runtime.Object, error) {
			return true, nil, fmt.Errorf("the server could not find the requested resource")
		})

	task, err := NewCollectorTask(client, nil, WithMeter(meter))
	require.NoError(t, err)

	err = task.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list gatekeeper constraints")

	// Pod 扫描侧不受影响
	got, found := counterFor(t, reader, "policy_violations_total", "policy", "require-app-label")
	require.True(t, found)
	assert.Equal(t, float64(1), got)
}

// TestCollectorPodScanFailure Pod 扫描失败不影响约束采集
func TestCollectorPodScanFailure(t *testing.T) {
	meter, reader := newTestMeter(t)

	client := newFakeClient([]runtime.Object{makeConstraint("require-team-label", 2)}, nil)
	client.Core.(*k8sfake.Clientset).PrependReactor("list", "pods",
		func(action k8stesting.Action) (bool, runtime.Object, error) {
			return true, nil, fmt.Errorf("forbidden")
		})

	task, err := NewCollectorTask(client, nil, WithMeter(meter))
	require.NoError(t, err)

	err = task.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list pods")

	got, found := counterFor(t, reader, "policy_violations_total", "policy", "require-team-label")
	require.True(t, found)
	assert.Equal(t, float64(2), got)
}

// TestCollectorReportsScanResults 模拟的漏洞扫描结果每次采集都会刷新
func TestCollectorReportsScanResults(t *testing.T) {
	meter, reader := newTestMeter(t)

	task, err := NewCollectorTask(newFakeClient(nil, nil), nil, WithMeter(meter))
	require.NoError(t, err)
	require.NoError(t, task.Run(context.Background()))

	wantBySeverity := map[string]float64{"critical": 0, "high": 2, "medium": 5}
	for severity, want := range wantBySeverity {
		got, found := gaugeFor(t, reader, "vulnerability_count", "severity", severity)
		require.True(t, found, "缺少 severity=%s 的漏洞计数", severity)
		assert.Equal(t, want, got)
	}

	for _, image := range []string{"api-service", "worker-service"} {
		got, found := gaugeFor(t, reader, "vulnerability_scan_status", "image", image)
		require.True(t, found, "缺少 image=%s 的扫描状态", image)
		assert.Equal(t, float64(1), got)
	}
}

// TestCollectorCustomConfig 自定义必备标签和跳过的命名空间
func TestCollectorCustomConfig(t *testing.T) {
	meter, reader := newTestMeter(t)

	client := newFakeClient(nil, []runtime.Object{
		makePod("default", "has-app-only", map[string]string{"app": "api"}),
		makePod("staging", "skipped", nil),
	})

	task, err := NewCollectorTask(client, &Config{
		RequiredLabel:  "team",
		SkipNamespaces: []string{"staging"},
	}, WithMeter(meter))
	require.NoError(t, err)
	require.NoError(t, task.Run(context.Background()))

	// default 里的 Pod 缺少 team 标签，staging 被跳过
	got, found := counterFor(t, reader, "policy_violations_total", "policy", "require-app-label")
	require.True(t, found)
	assert.Equal(t, float64(1), got)
}
