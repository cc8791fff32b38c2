package service

import (
	"Lattice/internal/api/dto"
	"Lattice/internal/model"
	"Lattice/internal/repository"
	"context"
	"errors"

	"gorm.io/gorm"
)

// BlockService 拉黑关系服务接口定义
type BlockService interface {
	Block(ctx context.Context, blockerID uint64, req *dto.CreateBlockReq) (*dto.BlockDTO, error)
	Unblock(ctx context.Context, blockerID, blockedID uint64) error
	IsBlocked(ctx context.Context, userA, userB uint64) (bool, error)
	ListBlocks(ctx context.Context, blockerID uint64) ([]*dto.BlockDTO, error)
}

type blockServiceImpl struct {
	blockRepo repository.BlockRepo
}

func NewBlockService(blockRepo repository.BlockRepo) BlockService {
	return &blockServiceImpl{blockRepo: blockRepo}
}

// Block 拉黑用户
// 拉黑自己是参数错误，重复拉黑是冲突，由唯一索引兜底而不是先查后插。
func (s *blockServiceImpl) Block(ctx context.Context, blockerID uint64, req *dto.CreateBlockReq) (*dto.BlockDTO, error) {
	if req.BlockedID == blockerID {
		return nil, ErrBlockSelf
	}
	if req.BlockedID == 0 {
		return nil, ErrParamInvalid
	}

	block := &model.UserBlock{
		BlockerID: blockerID,
		BlockedID: req.BlockedID,
		Comment:   req.Comment,
	}
	if err := s.blockRepo.Create(ctx, block); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrAlreadyBlocked
		}
		return nil, err
	}
	return toBlockDTO(block), nil
}

// Unblock 解除拉黑，只有拉黑发起方能解除自己的那条边
func (s *blockServiceImpl) Unblock(ctx context.Context, blockerID, blockedID uint64) error {
	deleted, err := s.blockRepo.Delete(ctx, blockerID, blockedID)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrBlockNotFound
	}
	return nil
}

// IsBlocked 双向检查两个用户之间是否存在拉黑关系
func (s *blockServiceImpl) IsBlocked(ctx context.Context, userA, userB uint64) (bool, error) {
	return s.blockRepo.ExistsBetween(ctx, userA, userB)
}

// ListBlocks 查询自己发起的拉黑列表（谁拉黑了谁必须可查，UI 要用）
func (s *blockServiceImpl) ListBlocks(ctx context.Context, blockerID uint64) ([]*dto.BlockDTO, error) {
	blocks, err := s.blockRepo.ListByBlocker(ctx, blockerID)
	if err != nil {
		return nil, err
	}
	res := make([]*dto.BlockDTO, 0, len(blocks))
	for _, b := range blocks {
		res = append(res, toBlockDTO(b))
	}
	return res, nil
}

func toBlockDTO(b *model.UserBlock) *dto.BlockDTO {
	return &dto.BlockDTO{
		ID:        b.ID,
		BlockerID: b.BlockerID,
		BlockedID: b.BlockedID,
		Comment:   b.Comment,
		CreatedAt: b.CreatedAt,
	}
}
