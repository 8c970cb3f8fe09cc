// Package poc implements Proof-of-Claim, the deterministic,
// leaderless task-to-node assignment function. It is a pure
// function of (task, nodes); no subsystem coordinates its outcome.
package poc

import (
	"crypto/sha256"
	"encoding/binary"
	"sort"

	"github.com/cuemby/meshcore/pkg/types"
)

// DetermineResponsibleNodes selects up to task.TargetRedundancy nodes from
// allNodes, deterministically and independent of slice order. If fewer
// capable nodes exist than the target, it returns all of them.
func DetermineResponsibleNodes(task *types.Task, allNodes []*types.Node) []types.Address {
	capable := make([]*types.Node, 0, len(allNodes))
	for _, n := range allNodes {
		if n.Annotations.HasAllRoles(task.RequiredCapabilities) {
			capable = append(capable, n)
		}
	}

	scored := make([]scoredNode, len(capable))
	for i, n := range capable {
		scored[i] = scoredNode{node: n, score: score(task.ID, string(n.ID))}
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score < scored[j].score
		}
		return scored[i].node.ID < scored[j].node.ID
	})

	redundancy := task.TargetRedundancy
	if redundancy <= 0 {
		redundancy = 1
	}
	if redundancy > len(scored) {
		redundancy = len(scored)
	}

	result := make([]types.Address, redundancy)
	for i := 0; i < redundancy; i++ {
		result[i] = scored[i].node.ID
	}
	return result
}

type scoredNode struct {
	node *types.Node
	score uint64
}

// score computes LE_u64(SHA256(task_id) XOR SHA256(node_id))[:8], the
// deterministic per-(task, node) priority value.
func score(taskID, nodeID string) uint64 {
	taskHash := sha256.Sum256([]byte(taskID))
	nodeHash := sha256.Sum256([]byte(nodeID))
	var xored [8]byte
	for i := 0; i < 8; i++ {
		xored[i] = taskHash[i] ^ nodeHash[i]
	}
	return binary.LittleEndian.Uint64(xored[:])
}

// IsResponsible reports whether nodeID is in the task's responsible set and
// the task is in a state a peer may claim: a peer claims a task only when
// its own id is in the responsible set and the task's current status is
// PoCAssigned.
func IsResponsible(task *types.Task, nodeID types.Address) bool {
	if task.Status != types.TaskPoCAssigned {
		return false
	}
	for _, addr := range task.ResponsibleNodes {
		if addr == nodeID {
			return true
		}
	}
	return false
}
