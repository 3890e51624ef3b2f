package gormrepository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tradekeeper/internal/models"
	"tradekeeper/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

// --- registry ---------------------------------------------------------------

// RegisterAccount assigns the next scan index and creates the row in one
// transaction. Two concurrent registrations that still read the same MAX
// collide on the unique scan_index and the loser's transaction rolls back
// instead of leaving a half-registered account.
func (s *Store) RegisterAccount(ctx context.Context, item *models.Account) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var max *int64
		err := tx.Model(&models.Account{}).
			Select("MAX(scan_index)").
			Scan(&max).Error
		if err != nil {
			return err
		}
		item.ScanIndex = 0
		if max != nil {
			item.ScanIndex = *max + 1
		}
		return tx.Create(item).Error
	})
}

func (s *Store) GetAccountByAddress(ctx context.Context, address string) (*models.Account, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Account
	err := s.db.WithContext(ctx).Where("address = ?", strings.TrimSpace(address)).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) GetAccountByAPIKey(ctx context.Context, key string) (*models.Account, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, nil
	}
	var item models.Account
	err := s.db.WithContext(ctx).
		Where("api_key = ? OR (delegate_key <> '' AND delegate_key = ?)", key, key).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListAccountsByScanIndex(ctx context.Context, offset int64, limit int) ([]models.Account, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}
	var items []models.Account
	err := s.db.WithContext(ctx).
		Where("scan_index >= ?", offset).
		Order("scan_index asc").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountAccounts(ctx context.Context) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Account{}).Count(&n).Error
	return n, err
}

func (s *Store) SetAccountActive(ctx context.Context, address string, active bool) error {
	return s.updateAccount(ctx, address, map[string]any{"active": active})
}

func (s *Store) SetAccountDelegate(ctx context.Context, address, delegate, delegateKey string) error {
	return s.updateAccount(ctx, address, map[string]any{
		"delegate":     strings.TrimSpace(delegate),
		"delegate_key": strings.TrimSpace(delegateKey),
	})
}

func (s *Store) updateAccount(ctx context.Context, address string, fields map[string]any) error {
	if s == nil || s.db == nil {
		return nil
	}
	res := s.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("address = ?", strings.TrimSpace(address)).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repository.ErrNotRegistered
	}
	return nil
}

// --- price alerts -----------------------------------------------------------

func (s *Store) UpsertPriceAlert(ctx context.Context, item *models.PriceAlert) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "account_address"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"target_price", "direction", "execute_action", "active", "cooldown", "updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) GetPriceAlertByAccount(ctx context.Context, address string) (*models.PriceAlert, error) {
	var item models.PriceAlert
	ok, err := s.getByAccount(ctx, address, &item)
	if err != nil || !ok {
		return nil, err
	}
	return &item, nil
}

func (s *Store) DeletePriceAlert(ctx context.Context, address string) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).
		Where("account_address = ?", strings.TrimSpace(address)).
		Delete(&models.PriceAlert{}).Error
}

func (s *Store) SetAlertTriggeredAt(ctx context.Context, address string, at time.Time) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&models.PriceAlert{}).
		Where("account_address = ?", strings.TrimSpace(address)).
		Update("last_triggered_at", at).Error
}

// --- trade configs ----------------------------------------------------------

func (s *Store) UpsertTradeConfig(ctx context.Context, item *models.TradeConfig) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "account_address"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"buy_below_price", "sell_above_price", "buy_amount", "sell_amount",
			"fee_tier", "slippage_bps", "active", "updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) GetTradeConfigByAccount(ctx context.Context, address string) (*models.TradeConfig, error) {
	var item models.TradeConfig
	ok, err := s.getByAccount(ctx, address, &item)
	if err != nil || !ok {
		return nil, err
	}
	return &item, nil
}

// --- risk params ------------------------------------------------------------

func (s *Store) UpsertRiskParams(ctx context.Context, item *models.RiskParams) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "account_address"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"stop_loss_price", "daily_max_loss", "updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) GetRiskParamsByAccount(ctx context.Context, address string) (*models.RiskParams, error) {
	var item models.RiskParams
	ok, err := s.getByAccount(ctx, address, &item)
	if err != nil || !ok {
		return nil, err
	}
	return &item, nil
}

func (s *Store) SaveRiskStatus(ctx context.Context, address string, accrued decimal.Decimal, lastReset time.Time, disabled bool) error {
	if s == nil || s.db == nil {
		return nil
	}
	res := s.db.WithContext(ctx).
		Model(&models.RiskParams{}).
		Where("account_address = ?", strings.TrimSpace(address)).
		Updates(map[string]any{
			"daily_loss_accrued":  accrued,
			"last_reset_at":       lastReset,
			"automation_disabled": disabled,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repository.ErrNotRegistered
	}
	return nil
}

// --- report configs ---------------------------------------------------------

func (s *Store) UpsertReportConfig(ctx context.Context, item *models.ReportConfig) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "account_address"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"alert_threshold", "report_interval", "active", "updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) GetReportConfigByAccount(ctx context.Context, address string) (*models.ReportConfig, error) {
	var item models.ReportConfig
	ok, err := s.getByAccount(ctx, address, &item)
	if err != nil || !ok {
		return nil, err
	}
	return &item, nil
}

func (s *Store) SetReportLastAt(ctx context.Context, address string, at time.Time) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&models.ReportConfig{}).
		Where("account_address = ?", strings.TrimSpace(address)).
		Update("last_report_at", at).Error
}

// --- fee ledger -------------------------------------------------------------

func (s *Store) GetFeeEntryByAccount(ctx context.Context, address string) (*models.FeeLedgerEntry, error) {
	var item models.FeeLedgerEntry
	ok, err := s.getByAccount(ctx, address, &item)
	if err != nil || !ok {
		return nil, err
	}
	return &item, nil
}

func (s *Store) AccrueFee(ctx context.Context, address string, amount decimal.Decimal) error {
	if s == nil || s.db == nil || amount.LessThanOrEqual(decimal.Zero) {
		return nil
	}
	address = strings.TrimSpace(address)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entry models.FeeLedgerEntry
		err := tx.Where("account_address = ?", address).First(&entry).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			entry = models.FeeLedgerEntry{
				AccountAddress: address,
				Owed:           amount,
				TotalAccrued:   amount,
			}
			return tx.Create(&entry).Error
		}
		if err != nil {
			return err
		}
		return tx.Model(&entry).Updates(map[string]any{
			"owed":          entry.Owed.Add(amount),
			"total_accrued": entry.TotalAccrued.Add(amount),
		}).Error
	})
}

func (s *Store) SettleFees(ctx context.Context, address string, at time.Time) (decimal.Decimal, error) {
	if s == nil || s.db == nil {
		return decimal.Zero, nil
	}
	address = strings.TrimSpace(address)
	paid := decimal.Zero
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entry models.FeeLedgerEntry
		err := tx.Where("account_address = ?", address).First(&entry).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if entry.Owed.LessThanOrEqual(decimal.Zero) {
			return nil
		}
		paid = entry.Owed
		return tx.Model(&entry).Updates(map[string]any{
			"owed":         decimal.Zero,
			"last_paid_at": at,
		}).Error
	})
	return paid, err
}

func (s *Store) RestoreFees(ctx context.Context, address string, amount decimal.Decimal) error {
	if s == nil || s.db == nil || amount.LessThanOrEqual(decimal.Zero) {
		return nil
	}
	address = strings.TrimSpace(address)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entry models.FeeLedgerEntry
		if err := tx.Where("account_address = ?", address).First(&entry).Error; err != nil {
			return err
		}
		return tx.Model(&entry).Update("owed", entry.Owed.Add(amount)).Error
	})
}

// --- trade records ----------------------------------------------------------

func (s *Store) InsertTradeRecord(ctx context.Context, item *models.TradeRecord) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) ListTradeRecords(ctx context.Context, params repository.ListTradeRecordsParams) ([]models.TradeRecord, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.TradeRecord{})
	if params.Account != nil && strings.TrimSpace(*params.Account) != "" {
		query = query.Where("account_address = ?", strings.TrimSpace(*params.Account))
	}
	if params.Kind != nil && strings.TrimSpace(*params.Kind) != "" {
		query = query.Where("kind = ?", strings.TrimSpace(*params.Kind))
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("executed_at >= ?", *params.Since)
	}
	limit := params.Limit
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	offset := params.Offset
	if offset < 0 {
		offset = 0
	}
	var items []models.TradeRecord
	if err := query.Order("executed_at desc").Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- upkeep runs ------------------------------------------------------------

func (s *Store) InsertUpkeepRun(ctx context.Context, item *models.UpkeepRun) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) ListUpkeepRuns(ctx context.Context, limit int) ([]models.UpkeepRun, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var items []models.UpkeepRun
	err := s.db.WithContext(ctx).
		Order("created_at desc").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) getByAccount(ctx context.Context, address string, dest any) (bool, error) {
	if s == nil || s.db == nil {
		return false, nil
	}
	err := s.db.WithContext(ctx).
		Where("account_address = ?", strings.TrimSpace(address)).
		First(dest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
