package composite

import (
	"context"
	"errors"

	"markarb/internal/application/port"
	"markarb/internal/domain/model"
)

// Repo 把写入扇出到多个仓储，返回第一个错误，其余仓储照常写入
type Repo struct {
	repos []port.Repository
}

func New(repos ...port.Repository) *Repo {
	// nil repos are allowed; filter in constructor for safety
	out := make([]port.Repository, 0, len(repos))
	for _, r := range repos {
		if r != nil {
			out = append(out, r)
		}
	}
	return &Repo{repos: out}
}

// Len 实际参与写入的仓储数
func (r *Repo) Len() int { return len(r.repos) }

func (r *Repo) UpsertLatestPrice(ctx context.Context, ex model.Exchange, symbol string, price float64, ts int64) error {
	return r.each(func(repo port.Repository) error {
		return repo.UpsertLatestPrice(ctx, ex, symbol, price, ts)
	})
}

func (r *Repo) InsertSignal(ctx context.Context, sig model.Signal) error {
	return r.each(func(repo port.Repository) error {
		return repo.InsertSignal(ctx, sig)
	})
}

func (r *Repo) SavePosition(ctx context.Context, pos model.Position) error {
	return r.each(func(repo port.Repository) error {
		return repo.SavePosition(ctx, pos)
	})
}

// Close 关闭全部仓储，合并错误
func (r *Repo) Close() error {
	var errs []error
	for _, repo := range r.repos {
		if err := repo.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Repo) each(fn func(repo port.Repository) error) error {
	var firstErr error
	for _, repo := range r.repos {
		if err := fn(repo); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

var _ port.Repository = (*Repo)(nil)
