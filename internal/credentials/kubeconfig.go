package credentials

import (
	"encoding/base64"
	"fmt"
	"os"

	"k8s.io/client-go/tools/clientcmd"
	clientcmdapi "k8s.io/client-go/tools/clientcmd/api"
)

// ClientGoKubeconfig builds kubeconfig files with k8s.io/client-go's
// typed API, materializing them to temp files the worker process points
// KUBE_CONFIG at, built with client-go's own config types instead of
// hand-rolled YAML.
type ClientGoKubeconfig struct{}

const contextName = "sentinel"

func (ClientGoKubeconfig) FromRaw(raw []byte, bearerToken string) (string, error) {
	cfg, err := clientcmd.Load(raw)
	if err != nil {
		return "", fmt.Errorf("credentials: load raw kubeconfig: %w", err)
	}
	if bearerToken != "" {
		// Add a synthetic user carrying the token, bind the existing
		// cluster to it, and make that context current.
		var clusterName string
		for name := range cfg.Clusters {
			clusterName = name
			break
		}
		cfg.AuthInfos[contextName] = &clientcmdapi.AuthInfo{Token: bearerToken}
		cfg.Contexts[contextName] = &clientcmdapi.Context{
			Cluster:  clusterName,
			AuthInfo: contextName,
		}
		cfg.CurrentContext = contextName
	}
	return writeTempKubeconfig(cfg)
}

func (ClientGoKubeconfig) FromCluster(clusterName, endpoint, caData, token string) (string, error) {
	ca, err := base64.StdEncoding.DecodeString(caData)
	if err != nil {
		return "", fmt.Errorf("credentials: decode cluster ca: %w", err)
	}
	cfg := clientcmdapi.NewConfig()
	cfg.Clusters[clusterName] = &clientcmdapi.Cluster{
		Server:                   endpoint,
		CertificateAuthorityData: ca,
	}
	cfg.AuthInfos[contextName] = &clientcmdapi.AuthInfo{Token: token}
	cfg.Contexts[contextName] = &clientcmdapi.Context{
		Cluster:  clusterName,
		AuthInfo: contextName,
	}
	cfg.CurrentContext = contextName
	return writeTempKubeconfig(cfg)
}

func writeTempKubeconfig(cfg *clientcmdapi.Config) (string, error) {
	data, err := clientcmd.Write(*cfg)
	if err != nil {
		return "", fmt.Errorf("encode kubeconfig: %w", err)
	}
	f, err := os.CreateTemp("", "kubeconfig-*.yaml")
	if err != nil {
		return "", fmt.Errorf("create temp kubeconfig: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("write temp kubeconfig: %w", err)
	}
	return f.Name(), nil
}
