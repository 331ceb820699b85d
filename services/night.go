package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/qianlnk/werewolf-companion/models"
)

var (
	ErrUnknownPlayer    = errors.New("目标玩家不存在")
	ErrUnknownWerewolf  = errors.New("该玩家不是狼人")
	ErrRoleNotAssigned  = errors.New("该角色尚未分配")
	ErrNotSingletonRole = errors.New("该角色没有 killedBy 字段")
)

// RecordKill 记录狼人的击杀目标
func (gs *GameService) RecordKill(ctx context.Context, werewolf, victim string) error {
	gs.mutex.Lock()
	defer gs.mutex.Unlock()

	if gs.closed {
		return ErrSessionClosed
	}
	if victim == "" || !gs.hasPlayer(victim) {
		return fmt.Errorf("%w: %q", ErrUnknownPlayer, victim)
	}
	for i := range gs.roleData.Werewolves {
		if gs.roleData.Werewolves[i].Name == werewolf {
			gs.roleData.Werewolves[i].Killed = append(gs.roleData.Werewolves[i].Killed, victim)
			return gs.saveRoleData(ctx)
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownWerewolf, werewolf)
}

// WitchPoison 女巫使用毒药，空字符串表示撤销
func (gs *GameService) WitchPoison(ctx context.Context, target string) error {
	return gs.apply(ctx, models.Witch, target, func(rd *models.RoleData) bool {
		if rd.Witch == nil {
			return false
		}
		rd.Witch.Poison = target
		return true
	})
}

// WitchPotion 女巫使用解药
func (gs *GameService) WitchPotion(ctx context.Context, target string) error {
	return gs.apply(ctx, models.Witch, target, func(rd *models.RoleData) bool {
		if rd.Witch == nil {
			return false
		}
		rd.Witch.Potion = target
		return true
	})
}

// HunterRetaliate 猎人开枪带走的玩家
func (gs *GameService) HunterRetaliate(ctx context.Context, target string) error {
	return gs.apply(ctx, models.Hunter, target, func(rd *models.RoleData) bool {
		if rd.Hunter == nil {
			return false
		}
		rd.Hunter.Retaliated = target
		return true
	})
}

// GuardianProtect 守卫当晚守护的玩家
func (gs *GameService) GuardianProtect(ctx context.Context, target string) error {
	return gs.apply(ctx, models.Guardian, target, func(rd *models.RoleData) bool {
		if rd.Guardian == nil {
			return false
		}
		rd.Guardian.Protecting = target
		return true
	})
}

// SetKilledBy 记录神职角色被谁杀死
func (gs *GameService) SetKilledBy(ctx context.Context, role models.Role, killer string) error {
	var set func(rd *models.RoleData) bool
	switch role {
	case models.Witch:
		set = func(rd *models.RoleData) bool {
			if rd.Witch == nil {
				return false
			}
			rd.Witch.KilledBy = killer
			return true
		}
	case models.Seer:
		set = func(rd *models.RoleData) bool {
			if rd.Seer == nil {
				return false
			}
			rd.Seer.KilledBy = killer
			return true
		}
	case models.Hunter:
		set = func(rd *models.RoleData) bool {
			if rd.Hunter == nil {
				return false
			}
			rd.Hunter.KilledBy = killer
			return true
		}
	case models.Guardian:
		set = func(rd *models.RoleData) bool {
			if rd.Guardian == nil {
				return false
			}
			rd.Guardian.KilledBy = killer
			return true
		}
	default:
		return fmt.Errorf("%w: %q", ErrNotSingletonRole, role)
	}
	// 凶手可以是玩家名，也可以是角色名（如 werewolf）
	if models.Role(killer).Known() {
		return gs.apply(ctx, role, "", set)
	}
	return gs.apply(ctx, role, killer, set)
}

// apply 校验目标后修改角色记录并保存，target 为空时不校验
func (gs *GameService) apply(ctx context.Context, role models.Role, target string, set func(*models.RoleData) bool) error {
	gs.mutex.Lock()
	defer gs.mutex.Unlock()

	if gs.closed {
		return ErrSessionClosed
	}
	if target != "" && !gs.hasPlayer(target) {
		return fmt.Errorf("%w: %q", ErrUnknownPlayer, target)
	}
	if !set(gs.roleData) {
		return fmt.Errorf("%w: %s", ErrRoleNotAssigned, role)
	}
	return gs.saveRoleData(ctx)
}

// hasPlayer 调用方需持有锁
func (gs *GameService) hasPlayer(name string) bool {
	for _, p := range gs.gameData.Players {
		if p == name {
			return true
		}
	}
	return false
}
