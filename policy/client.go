// Package policy 采集 OPA Gatekeeper 的策略违规情况并导出为 Prometheus 指标。
//
// 采集器作为调度循环上的一个任务运行，每个周期：
//   - 读取 k8srequiredlabels 约束的 status.violations 并累加违规计数
//   - 扫描全部命名空间的 Pod，统计缺少 app 标签的 Pod
//   - 刷新模拟的镜像漏洞扫描结果
//
// 约束读取和 Pod 扫描是两个独立的故障边界：任何一侧失败都不影响
// 另一侧采集，错误合并后交给调度器记录。
package policy

import (
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/ceyewan/nimbus/xerrors"
)

// ClusterClient 持有访问集群所需的两个客户端。
//
// Dynamic 用于读取 Gatekeeper 的约束资源（CRD），
// Core 用于列出 Pod。测试中可直接用 fake 客户端构造。
type ClusterClient struct {
	Dynamic dynamic.Interface
	Core    kubernetes.Interface
}

// NewClusterClient 创建集群客户端。
//
// 优先使用集群内 ServiceAccount 凭据（Pod 中运行时），
// 失败则回退到 kubeconfig（本地开发）。kubeconfig 为空时
// 使用默认查找规则（KUBECONFIG 环境变量、~/.kube/config）。
func NewClusterClient(kubeconfig string) (*ClusterClient, error) {
	cfg, err := loadRestConfig(kubeconfig)
	if err != nil {
		return nil, xerrors.Wrap(err, "load cluster config")
	}

	dyn, err := dynamic.NewForConfig(cfg)
	if err != nil {
		return nil, xerrors.Wrap(err, "create dynamic client")
	}

	core, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, xerrors.Wrap(err, "create core client")
	}

	return &ClusterClient{Dynamic: dyn, Core: core}, nil
}

// loadRestConfig 集群内配置优先，失败回退到 kubeconfig
func loadRestConfig(kubeconfig string) (*rest.Config, error) {
	if cfg, err := rest.InClusterConfig(); err == nil {
		return cfg, nil
	}

	loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
	if kubeconfig != "" {
		loadingRules.ExplicitPath = kubeconfig
	}
	return clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
		loadingRules, &clientcmd.ConfigOverrides{}).ClientConfig()
}
