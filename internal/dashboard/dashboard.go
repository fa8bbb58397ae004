package dashboard

import (
	"context"

	"github.com/harrylevesque/makerdash/internal/models"
	"github.com/harrylevesque/makerdash/internal/sysinfo"
)

// Dashboard returns the home page totals, maker rows and recent activity.
func (s *Service) Dashboard(ctx context.Context) (models.DashboardSummary, error) {
	makers, err := s.ListMakers(ctx)
	if err != nil {
		return models.DashboardSummary{}, err
	}
	activity, err := s.Activity(ctx, recentActivity)
	if err != nil {
		return models.DashboardSummary{}, err
	}

	var balance, earnings int64
	out := models.DashboardSummary{
		TotalMakers: len(makers),
		Makers:      makers,
		Activity:    activity,
	}
	for _, m := range makers {
		balance += m.BalanceSats
		earnings += m.EarningsSats
		out.TotalSwaps += m.ActiveSwaps
		if m.Status == models.StatusOnline {
			out.OnlineMakers++
		}
	}
	out.TotalBalance = formatBTC(balance, 2)
	out.TotalEarnings = formatBTC(earnings, 4)
	return out, nil
}

// Activity returns the newest entries across all makers.
func (s *Service) Activity(ctx context.Context, limit int) ([]models.Activity, error) {
	as, err := s.store.Activity.Recent(ctx, limit)
	if err != nil {
		return nil, err
	}
	return s.withTimes(as), nil
}

// System returns host stats and the number of running makers.
func (s *Service) System(ctx context.Context) models.SystemInfo {
	info := sysinfo.Collect(ctx, s.cfg.DataRoot)
	info.RunningMakers = s.manager.MakerCount()
	return info
}
