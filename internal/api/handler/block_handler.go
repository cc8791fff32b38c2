package handler

import (
	"Lattice/internal/api/dto"
	"Lattice/internal/pkg/response"
	"Lattice/internal/service"
	"strconv"

	"github.com/gin-gonic/gin"
)

type BlockHandler struct {
	blockSvc service.BlockService
}

func NewBlockHandler(blockSvc service.BlockService) *BlockHandler {
	return &BlockHandler{blockSvc: blockSvc}
}

// Block POST /api/blocks
func (s *BlockHandler) Block(c *gin.Context) {
	userID := c.GetUint64("user_id")

	var req dto.CreateBlockReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, err)
		return
	}

	block, err := s.blockSvc.Block(c, userID, &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, block)
}

// Unblock DELETE /api/blocks/:blocked_id
func (s *BlockHandler) Unblock(c *gin.Context) {
	userID := c.GetUint64("user_id")

	blockedID, err := strconv.ParseUint(c.Param("blocked_id"), 10, 64)
	if err != nil || blockedID == 0 {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	if err := s.blockSvc.Unblock(c, userID, blockedID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// ListBlocks GET /api/blocks
func (s *BlockHandler) ListBlocks(c *gin.Context) {
	userID := c.GetUint64("user_id")

	blocks, err := s.blockSvc.ListBlocks(c, userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, blocks)
}
