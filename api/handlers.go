package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/qianlnk/werewolf-companion/models"
	"github.com/qianlnk/werewolf-companion/services"
	"go.uber.org/zap"
)

// statusFor 把业务错误映射为 HTTP 状态码
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrSessionNotFound),
		errors.Is(err, services.ErrSessionClosed):
		return http.StatusNotFound
	case errors.Is(err, services.ErrUnknownPlayer),
		errors.Is(err, services.ErrUnknownWerewolf),
		errors.Is(err, services.ErrRoleNotAssigned),
		errors.Is(err, services.ErrNotSingletonRole),
		errors.Is(err, services.ErrTooFewPlayers),
		errors.Is(err, services.ErrTooManyPlayers),
		errors.Is(err, services.ErrUnknownMode):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("请求处理失败", zap.String("path", c.Request.URL.Path), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// game 取出路径中的会话，失败时已写入响应
func (s *Server) game(c *gin.Context) (*services.GameService, bool) {
	session, err := s.sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return nil, false
	}
	return session.Game, true
}

func (s *Server) roleDeck(c *gin.Context) {
	count, err := strconv.Atoi(c.Query("players"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "players 必须是整数"})
		return
	}
	roles, err := services.RoleDeck(count, models.GameMode(c.Query("mode")))
	if err != nil {
		s.fail(c, err)
		return
	}
	if c.Query("shuffle") == "true" {
		services.ShuffleRoles(roles)
	}
	c.JSON(http.StatusOK, gin.H{"roles": roles})
}

func (s *Server) createSession(c *gin.Context) {
	session, err := s.sessions.Create(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	gameData, _ := session.Game.Snapshot()
	c.JSON(http.StatusCreated, gin.H{"id": session.ID, "gameData": gameData})
}

func (s *Server) endSession(c *gin.Context) {
	if err := s.sessions.End(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) getGameData(c *gin.Context) {
	game, ok := s.game(c)
	if !ok {
		return
	}
	gameData, _ := game.Snapshot()
	c.JSON(http.StatusOK, gameData)
}

func (s *Server) getRoleData(c *gin.Context) {
	game, ok := s.game(c)
	if !ok {
		return
	}
	_, roleData := game.Snapshot()
	c.JSON(http.StatusOK, roleData)
}

func (s *Server) passTo(c *gin.Context) {
	game, ok := s.game(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"passTo": game.PassTo()})
}

func (s *Server) updatePage(c *gin.Context) {
	var req struct {
		Page string `json:"page" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	game, ok := s.game(c)
	if !ok {
		return
	}
	if err := game.UpdatePage(c.Request.Context(), req.Page); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"currentPage": req.Page})
}

func (s *Server) updateGameData(c *gin.Context) {
	var update services.GameDataUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	game, ok := s.game(c)
	if !ok {
		return
	}
	if err := game.UpdateGameData(c.Request.Context(), update); err != nil {
		s.fail(c, err)
		return
	}
	gameData, _ := game.Snapshot()
	c.JSON(http.StatusOK, gameData)
}

func (s *Server) reset(c *gin.Context) {
	game, ok := s.game(c)
	if !ok {
		return
	}
	if err := game.Reset(c.Request.Context()); err != nil {
		s.fail(c, err)
		return
	}
	gameData, _ := game.Snapshot()
	c.JSON(http.StatusOK, gameData)
}

func (s *Server) restart(c *gin.Context) {
	game, ok := s.game(c)
	if !ok {
		return
	}
	if err := game.Restart(c.Request.Context()); err != nil {
		s.fail(c, err)
		return
	}
	gameData, _ := game.Snapshot()
	c.JSON(http.StatusOK, gameData)
}

func (s *Server) addPlayer(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
		Role string `json:"role"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	game, ok := s.game(c)
	if !ok {
		return
	}
	if err := game.AddPlayer(c.Request.Context(), req.Name, req.Role); err != nil {
		s.fail(c, err)
		return
	}
	gameData, roleData := game.Snapshot()
	c.JSON(http.StatusOK, gin.H{"gameData": gameData, "roleData": roleData})
}

func (s *Server) nextNight(c *gin.Context) {
	game, ok := s.game(c)
	if !ok {
		return
	}
	night, err := game.NextNight(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"currentNight": night})
}

func (s *Server) recordKill(c *gin.Context) {
	var req struct {
		Werewolf string `json:"werewolf" binding:"required"`
		Victim   string `json:"victim" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	game, ok := s.game(c)
	if !ok {
		return
	}
	if err := game.RecordKill(c.Request.Context(), req.Werewolf, req.Victim); err != nil {
		s.fail(c, err)
		return
	}
	s.roleDataResponse(c, game)
}

func (s *Server) witch(c *gin.Context) {
	var req struct {
		Poison *string `json:"poison"`
		Potion *string `json:"potion"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Poison == nil && req.Potion == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "poison 或 potion 至少提供一个"})
		return
	}
	game, ok := s.game(c)
	if !ok {
		return
	}
	if req.Poison != nil {
		if err := game.WitchPoison(c.Request.Context(), *req.Poison); err != nil {
			s.fail(c, err)
			return
		}
	}
	if req.Potion != nil {
		if err := game.WitchPotion(c.Request.Context(), *req.Potion); err != nil {
			s.fail(c, err)
			return
		}
	}
	s.roleDataResponse(c, game)
}

type targetRequest struct {
	Target string `json:"target"`
}

func (s *Server) hunter(c *gin.Context) {
	var req targetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	game, ok := s.game(c)
	if !ok {
		return
	}
	if err := game.HunterRetaliate(c.Request.Context(), req.Target); err != nil {
		s.fail(c, err)
		return
	}
	s.roleDataResponse(c, game)
}

func (s *Server) guardian(c *gin.Context) {
	var req targetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	game, ok := s.game(c)
	if !ok {
		return
	}
	if err := game.GuardianProtect(c.Request.Context(), req.Target); err != nil {
		s.fail(c, err)
		return
	}
	s.roleDataResponse(c, game)
}

func (s *Server) killedBy(c *gin.Context) {
	var req struct {
		Role   string `json:"role" binding:"required"`
		Killer string `json:"killer"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	game, ok := s.game(c)
	if !ok {
		return
	}
	if err := game.SetKilledBy(c.Request.Context(), models.Role(req.Role), req.Killer); err != nil {
		s.fail(c, err)
		return
	}
	s.roleDataResponse(c, game)
}

func (s *Server) roleDataResponse(c *gin.Context, game *services.GameService) {
	_, roleData := game.Snapshot()
	c.JSON(http.StatusOK, roleData)
}

func (s *Server) servePageSocket(c *gin.Context) {
	game, ok := s.game(c)
	if !ok {
		return
	}
	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("升级WebSocket连接失败", zap.Error(err))
		return
	}
	id := c.Param("id")
	touch := func() { s.sessions.Touch(id) }
	services.NewPageSocket(ws, game, touch, s.logger.With(zap.String("session", id))).Serve(c.Request.Context())
}
