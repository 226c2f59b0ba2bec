package policy

import (
	"context"
	"fmt"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/ceyewan/nimbus/clog"
	"github.com/ceyewan/nimbus/metrics"
	"github.com/ceyewan/nimbus/xerrors"
)

const (
	metricViolationsTotal    = "policy_violations_total"
	metricValidationDuration = "policy_validation_duration_seconds"
	metricVulnerabilityCount = "vulnerability_count"
	metricDeploymentBlocked  = "deployment_blocked_total"
	metricScanStatus         = "vulnerability_scan_status"

	severityWarning     = "warning"
	podScanPolicy       = "require-app-label"
	reasonMissingLabels = "missing-required-labels"

	// 约束状态中报告的校验耗时是模拟值
	simulatedValidationSeconds = 0.05
)

// constraintGVR Gatekeeper 必备标签约束的资源定位
var constraintGVR = schema.GroupVersionResource{
	Group:    "constraints.gatekeeper.sh",
	Version:  "v1beta1",
	Resource: "k8srequiredlabels",
}

// Config 采集任务配置
type Config struct {
	// RequiredLabel Pod 必须携带的标签 (默认: "app")
	RequiredLabel string `mapstructure:"required_label"`

	// SkipNamespaces 扫描时跳过的系统命名空间
	// (默认: kube-system、gatekeeper-system、monitoring)
	SkipNamespaces []string `mapstructure:"skip_namespaces"`
}

// setDefaults 设置默认值
func (c *Config) setDefaults() {
	if c.RequiredLabel == "" {
		c.RequiredLabel = "app"
	}
	if len(c.SkipNamespaces) == 0 {
		c.SkipNamespaces = []string{"kube-system", "gatekeeper-system", "monitoring"}
	}
}

// CollectorTask 策略违规采集任务，实现 scheduler.Task
type CollectorTask struct {
	client *ClusterClient
	cfg    *Config
	logger clog.Logger
	skip   map[string]struct{}

	violations         metrics.Counter
	validationDuration metrics.Gauge
	vulnerabilityCount metrics.Gauge
	deploymentBlocked  metrics.Counter
	scanStatus         metrics.Gauge
}

// NewCollectorTask 创建策略违规采集任务
func NewCollectorTask(client *ClusterClient, cfg *Config, opts ...Option) (*CollectorTask, error) {
	if client == nil {
		return nil, xerrors.New("policy: cluster client is nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.setDefaults()

	opt := &options{}
	for _, o := range opts {
		o(opt)
	}
	opt.applyDefaults()

	violations, err := opt.meter.Counter(metricViolationsTotal, "Total policy violations.")
	if err != nil {
		return nil, xerrors.Wrap(err, "create violations counter")
	}
	validationDuration, err := opt.meter.Gauge(metricValidationDuration, "Policy validation duration in seconds.")
	if err != nil {
		return nil, xerrors.Wrap(err, "create validation duration gauge")
	}
	vulnerabilityCount, err := opt.meter.Gauge(metricVulnerabilityCount, "Number of vulnerabilities by severity.")
	if err != nil {
		return nil, xerrors.Wrap(err, "create vulnerability count gauge")
	}
	deploymentBlocked, err := opt.meter.Counter(metricDeploymentBlocked, "Deployments blocked by policy.")
	if err != nil {
		return nil, xerrors.Wrap(err, "create deployment blocked counter")
	}
	scanStatus, err := opt.meter.Gauge(metricScanStatus, "Vulnerability scan status per image.")
	if err != nil {
		return nil, xerrors.Wrap(err, "create scan status gauge")
	}

	skip := make(map[string]struct{}, len(cfg.SkipNamespaces))
	for _, ns := range cfg.SkipNamespaces {
		skip[ns] = struct{}{}
	}

	return &CollectorTask{
		client:             client,
		cfg:                cfg,
		logger:             opt.logger,
		skip:               skip,
		violations:         violations,
		validationDuration: validationDuration,
		vulnerabilityCount: vulnerabilityCount,
		deploymentBlocked:  deploymentBlocked,
		scanStatus:         scanStatus,
	}, nil
}

// Name 返回任务名称
func (t *CollectorTask) Name() string {
	return "collect-violations"
}

// Run 执行一次采集。
//
// 约束读取和 Pod 扫描是独立的故障边界：一侧失败不阻止另一侧。
// 所有错误合并返回，由调度器统一记录。
func (t *CollectorTask) Run(ctx context.Context) error {
	constraintErr := t.collectConstraints(ctx)
	podErr := t.scanPods(ctx)
	t.reportScanResults(ctx)

	return xerrors.Combine(constraintErr, podErr)
}

// collectConstraints 读取 Gatekeeper 约束状态中的违规记录
func (t *CollectorTask) collectConstraints(ctx context.Context) error {
	list, err := t.client.Dynamic.Resource(constraintGVR).List(ctx, metav1.ListOptions{})
	if err != nil {
		return xerrors.Wrap(err, "list gatekeeper constraints")
	}

	for _, constraint := range list.Items {
		name := constraint.GetName()

		violations := constraintViolations(&constraint)
		if violations > 0 {
			t.violations.Add(ctx, float64(violations),
				metrics.L(metrics.LabelPolicy, name),
				metrics.L(metrics.LabelSeverity, severityWarning))
			t.logger.Info("constraint violations found",
				clog.String("policy", name),
				clog.Int("violations", violations))
		}

		t.validationDuration.Set(ctx, simulatedValidationSeconds, metrics.L(metrics.LabelPolicy, name))
	}

	return nil
}

// constraintViolations 从约束的 status.violations 中取违规条数
func constraintViolations(constraint *unstructured.Unstructured) int {
	violations, found, err := unstructured.NestedSlice(constraint.Object, "status", "violations")
	if err != nil || !found {
		return 0
	}
	return len(violations)
}

// scanPods 扫描全部命名空间的 Pod，统计缺少必备标签的 Pod
func (t *CollectorTask) scanPods(ctx context.Context) error {
	pods, err := t.client.Core.CoreV1().Pods(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		return xerrors.Wrap(err, "list pods")
	}

	missing := 0
	for _, pod := range pods.Items {
		if _, skipped := t.skip[pod.Namespace]; skipped {
			continue
		}
		if _, ok := pod.Labels[t.cfg.RequiredLabel]; !ok {
			missing++
		}
	}

	if missing > 0 {
		t.violations.Add(ctx, float64(missing),
			metrics.L(metrics.LabelPolicy, podScanPolicy),
			metrics.L(metrics.LabelSeverity, severityWarning))
		t.deploymentBlocked.Inc(ctx, metrics.L(metrics.LabelReason, reasonMissingLabels))
		t.logger.Info(fmt.Sprintf("found %d pods without %s label", missing, t.cfg.RequiredLabel))
	}

	return nil
}

// reportScanResults 刷新模拟的镜像漏洞扫描结果
func (t *CollectorTask) reportScanResults(ctx context.Context) {
	t.vulnerabilityCount.Set(ctx, 0, metrics.L(metrics.LabelSeverity, "critical"))
	t.vulnerabilityCount.Set(ctx, 2, metrics.L(metrics.LabelSeverity, "high"))
	t.vulnerabilityCount.Set(ctx, 5, metrics.L(metrics.LabelSeverity, "medium"))

	t.scanStatus.Set(ctx, 1, metrics.L(metrics.LabelImage, "api-service"))
	t.scanStatus.Set(ctx, 1, metrics.L(metrics.LabelImage, "worker-service"))
}
