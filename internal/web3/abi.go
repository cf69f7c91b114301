package web3

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// The contract interfaces are a fixed wire contract defined by the deployed
// Solidity sources. Method names use the snake_case spelling of the deployed
// tracker; renaming them here would break every call.

const trackerABIJSON = `[
  {"type":"function","name":"owner","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
  {"type":"function","name":"courses","stateMutability":"view","inputs":[{"name":"course_id","type":"uint256"}],"outputs":[{"name":"is_created","type":"bool"},{"name":"reward_amount","type":"uint256"}]},
  {"type":"function","name":"get_course_ids","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256[]"}]},
  {"type":"function","name":"has_completed","stateMutability":"view","inputs":[{"name":"student","type":"address"},{"name":"course_id","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"has_claimed_reward","stateMutability":"view","inputs":[{"name":"student","type":"address"},{"name":"course_id","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"add_course","stateMutability":"nonpayable","inputs":[{"name":"course_id","type":"uint256"},{"name":"reward_amount","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"mark_completion","stateMutability":"nonpayable","inputs":[{"name":"student","type":"address"},{"name":"course_id","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"delete_course","stateMutability":"nonpayable","inputs":[{"name":"course_id","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"claim_reward","stateMutability":"nonpayable","inputs":[{"name":"course_id","type":"uint256"}],"outputs":[]},
  {"type":"event","name":"RewardClaimed","inputs":[{"name":"student","type":"address","indexed":true},{"name":"course_id","type":"uint256","indexed":true},{"name":"amount","type":"uint256","indexed":false}],"anonymous":false}
]`

const tokenABIJSON = `[
  {"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
  {"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]}
]`

// TrackerABI parses the course completion tracker interface.
func TrackerABI() (abi.ABI, error) {
	parsed, err := abi.JSON(strings.NewReader(trackerABIJSON))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("parse tracker abi: %w", err)
	}
	return parsed, nil
}

// TokenABI parses the reward token interface.
func TokenABI() (abi.ABI, error) {
	parsed, err := abi.JSON(strings.NewReader(tokenABIJSON))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("parse token abi: %w", err)
	}
	return parsed, nil
}
