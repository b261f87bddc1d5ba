package main

import (
	"fmt"
	"os"
	"time"

	"github.com/cuemby/sokovan/pkg/storage"
	"github.com/cuemby/sokovan/pkg/types"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// applyCmd submits a session from a YAML file, the CLI-friendly
// counterpart to 'session submit's flag-per-field form.
var applyCmd = &cobra.Command{
	Use:   "apply -f FILE",
	Short: "Submit a session described in a YAML file",
	Long: `Apply a session definition:

  apiVersion: sokovan/v1
  kind: Session
  metadata:
    name: my-session
  spec:
    accessKey: AKIAEXAMPLE
    scalingGroup: default
    image: python:3.11`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().StringP("file", "f", "", "YAML file to apply (required)")
	applyCmd.Flags().String("data-dir", "./data", "manager data directory")
	_ = applyCmd.MarkFlagRequired("file")
}

type sessionResource struct {
	APIVersion string `yaml:"apiVersion"`
	Kind       string `yaml:"kind"`
	Metadata   struct {
		Name string `yaml:"name"`
	} `yaml:"metadata"`
	Spec struct {
		AccessKey    string `yaml:"accessKey"`
		ScalingGroup string `yaml:"scalingGroup"`
		Image        string `yaml:"image"`
	} `yaml:"spec"`
}

func runApply(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")
	dataDir, _ := cmd.Flags().GetString("data-dir")

	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("read %s: %w", filename, err)
	}
	var resource sessionResource
	if err := yaml.Unmarshal(data, &resource); err != nil {
		return fmt.Errorf("parse %s: %w", filename, err)
	}
	if resource.Kind != "Session" {
		return fmt.Errorf("unsupported resource kind: %s", resource.Kind)
	}
	scalingGroup := resource.Spec.ScalingGroup
	if scalingGroup == "" {
		scalingGroup = "default"
	}
	return submitSession(dataDir, resource.Metadata.Name, resource.Spec.AccessKey, scalingGroup, resource.Spec.Image)
}

func submitSession(dataDir, name, accessKey, scalingGroup, imageRef string) error {
	if accessKey == "" || imageRef == "" {
		return fmt.Errorf("access-key and image are required")
	}
	store, err := storage.NewBoltStore(dataDir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	now := time.Now()
	sessionID := types.SessionID(fmt.Sprintf("s-%d", now.UnixNano()))
	kernelID := types.KernelID(fmt.Sprintf("k-%d", now.UnixNano()))

	session := &types.Session{
		ID:           sessionID,
		Name:         name,
		AccessKey:    types.AccessKey(accessKey),
		ScalingGroup: types.ScalingGroupName(scalingGroup),
		SessionType:  types.SessionInteractive,
		ClusterMode:  types.ClusterModeSingleNode,
		Status:       types.SessionPending,
		StatusInfo:   "submitted via sokovand",
		CreatedAt:    now,
	}
	if err := store.CreateSession(session); err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	kernel := &types.Kernel{
		ID:             kernelID,
		SessionID:      sessionID,
		ClusterRole:    types.ClusterRoleMain,
		ClusterIdx:     0,
		ImageRef:       imageRef,
		Status:         types.KernelPending,
		StatusChanged:  now,
		RequestedSlots: types.ResourceSlot{},
	}
	if err := store.CreateKernel(kernel); err != nil {
		return fmt.Errorf("create kernel: %w", err)
	}

	fmt.Printf("session submitted: %s (kernel %s)\n", sessionID, kernelID)
	return nil
}

func terminateSession(dataDir, sessionID string) error {
	store, err := storage.NewBoltStore(dataDir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	session, err := store.GetSession(types.SessionID(sessionID))
	if err != nil {
		return fmt.Errorf("get session: %w", err)
	}
	session.Status = types.SessionTerminating
	session.StatusInfo = "terminate requested via sokovand"
	if err := store.UpdateSession(session); err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	fmt.Printf("session %s marked TERMINATING\n", sessionID)
	return nil
}

func listSessions(dataDir, status string) error {
	store, err := storage.NewBoltStore(dataDir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	sessions, err := store.ListSessionsByStatus(types.SessionStatus(status))
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	fmt.Printf("%-24s %-16s %-12s %s\n", "ID", "NAME", "SCALING GRP", "STATUS")
	for _, s := range sessions {
		fmt.Printf("%-24s %-16s %-12s %s\n", s.ID, s.Name, s.ScalingGroup, s.Status)
	}
	return nil
}

func listAgents(dataDir string) error {
	store, err := storage.NewBoltStore(dataDir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	agents, err := store.ListAgents()
	if err != nil {
		return fmt.Errorf("list agents: %w", err)
	}
	fmt.Printf("%-24s %-12s %-10s\n", "ID", "SCALING GRP", "STATUS")
	for _, a := range agents {
		fmt.Printf("%-24s %-12s %-10s\n", a.ID, a.ScalingGroup, a.Status)
	}
	return nil
}
