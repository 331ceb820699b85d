package services

import (
	"errors"
	"math/rand"

	"github.com/qianlnk/werewolf-companion/models"
)

// MaxPlayers 一张桌子最多的玩家数
const MaxPlayers = 30

var (
	ErrTooFewPlayers  = errors.New("玩家人数不足")
	ErrTooManyPlayers = errors.New("玩家人数过多")
	ErrUnknownMode    = errors.New("未知的游戏模式")
)

// RoleDeck 按人数和模式生成推荐的角色列表，不足的位置补村民
func RoleDeck(playerCount int, mode models.GameMode) ([]string, error) {
	if playerCount > MaxPlayers {
		return nil, ErrTooManyPlayers
	}

	var roles []string
	switch mode {
	case models.ClassicMode, "":
		// 经典模式：狼人2个，预言家1个，女巫1个
		roles = append(roles,
			string(models.Werewolf), string(models.Werewolf),
			string(models.Seer),
			string(models.Witch),
		)
	case models.StandardMode:
		// 标准模式：增加猎人和守卫
		roles = append(roles,
			string(models.Werewolf), string(models.Werewolf),
			string(models.Seer),
			string(models.Witch),
			string(models.Hunter),
			string(models.Guardian),
		)
	default:
		return nil, ErrUnknownMode
	}

	// 至少要有一个村民
	if playerCount <= len(roles) {
		return nil, ErrTooFewPlayers
	}
	roles = append(make([]string, 0, playerCount), roles...)
	for len(roles) < playerCount {
		roles = append(roles, string(models.Villager))
	}
	return roles, nil
}

// ShuffleRoles 原地打乱角色顺序
func ShuffleRoles(roles []string) {
	rand.Shuffle(len(roles), func(i, j int) {
		roles[i], roles[j] = roles[j], roles[i]
	})
}
