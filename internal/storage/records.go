package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"casacore/internal/core"
)

// Entity records share a single lifecycle: upsert writes the row and
// enqueues a mirror upsert, delete removes the row and enqueues a mirror
// delete, all inside one SQL transaction.

func (r *SQLiteRepository) UpsertAsset(ctx context.Context, a core.Asset) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO assets (id, name, type, location, purchase_price, current_value,
			                    currency, annual_growth_rate, purchase_date, notes, synced)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
			ON CONFLICT (id) DO UPDATE SET
				name = excluded.name, type = excluded.type, location = excluded.location,
				purchase_price = excluded.purchase_price, current_value = excluded.current_value,
				currency = excluded.currency, annual_growth_rate = excluded.annual_growth_rate,
				purchase_date = excluded.purchase_date, notes = excluded.notes, synced = 0`,
			a.ID, a.Name, string(a.Type), a.Location, a.PurchasePrice.String(), a.CurrentValue.String(),
			string(a.Currency), a.AnnualGrowthRate.String(), fmtTime(a.PurchaseDate), a.Notes)
		if err != nil {
			return fmt.Errorf("upsert asset: %w", err)
		}
		return enqueueSync(ctx, tx, TableAssets, a.ID, SyncOpUpsert, assetRow(a))
	})
}

func (r *SQLiteRepository) DeleteAsset(ctx context.Context, id string) error {
	return r.deleteRecord(ctx, TableAssets, id)
}

func (r *SQLiteRepository) ListAssets(ctx context.Context) ([]core.Asset, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, type, location, purchase_price, current_value,
		       currency, annual_growth_rate, purchase_date, notes
		FROM assets ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	defer rows.Close()

	var assets []core.Asset
	for rows.Next() {
		var (
			a                           core.Asset
			typ, price, value, currency string
			growth, purchaseDate        string
		)
		if err := rows.Scan(&a.ID, &a.Name, &typ, &a.Location, &price, &value,
			&currency, &growth, &purchaseDate, &a.Notes); err != nil {
			return nil, fmt.Errorf("scan asset: %w", err)
		}
		a.Type = core.AssetType(typ)
		a.PurchasePrice = parseDecimal(price)
		a.CurrentValue = parseDecimal(value)
		a.Currency = core.Currency(currency)
		a.AnnualGrowthRate = parseDecimal(growth)
		a.PurchaseDate = parseTime(purchaseDate)
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

func (r *SQLiteRepository) UpsertBill(ctx context.Context, b core.Bill) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO bills (id, name, amount, currency, due_date, is_paid, category, is_recurring, frequency, synced)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
			ON CONFLICT (id) DO UPDATE SET
				name = excluded.name, amount = excluded.amount, currency = excluded.currency,
				due_date = excluded.due_date, is_paid = excluded.is_paid, category = excluded.category,
				is_recurring = excluded.is_recurring, frequency = excluded.frequency, synced = 0`,
			b.ID, b.Name, b.Amount.String(), string(b.Currency), fmtTime(b.DueDate),
			b.IsPaid, b.Category, b.IsRecurring, b.Frequency)
		if err != nil {
			return fmt.Errorf("upsert bill: %w", err)
		}
		return enqueueSync(ctx, tx, TableBills, b.ID, SyncOpUpsert, billRow(b))
	})
}

// SetBillPaid flips the paid flag without rewriting the rest of the row.
func (r *SQLiteRepository) SetBillPaid(ctx context.Context, id string, paid bool) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE bills SET is_paid = ?, synced = 0 WHERE id = ?`, paid, id)
		if err != nil {
			return fmt.Errorf("set bill paid: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		b, err := getBill(ctx, tx, id)
		if err != nil {
			return err
		}
		return enqueueSync(ctx, tx, TableBills, id, SyncOpUpsert, billRow(b))
	})
}

func (r *SQLiteRepository) DeleteBill(ctx context.Context, id string) error {
	return r.deleteRecord(ctx, TableBills, id)
}

func (r *SQLiteRepository) ListBills(ctx context.Context) ([]core.Bill, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, amount, currency, due_date, is_paid, category, is_recurring, frequency
		FROM bills ORDER BY due_date`)
	if err != nil {
		return nil, fmt.Errorf("list bills: %w", err)
	}
	defer rows.Close()

	var bills []core.Bill
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, err
		}
		bills = append(bills, b)
	}
	return bills, rows.Err()
}

func (r *SQLiteRepository) UpsertDeal(ctx context.Context, d core.RealEstateDeal) error {
	payouts, err := json.Marshal(d.CommissionPayouts)
	if err != nil {
		return fmt.Errorf("marshal commission payouts: %w", err)
	}
	payments, err := json.Marshal(d.CustomerPayments)
	if err != nil {
		return fmt.Errorf("marshal customer payments: %w", err)
	}
	return r.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO real_estate_deals (id, developer_id, customer_name, total_sale_value,
			                               commission_pct, gross_commission, net_commission, status,
			                               currency, sale_date, commission_payouts, customer_payments, synced)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
			ON CONFLICT (id) DO UPDATE SET
				developer_id = excluded.developer_id, customer_name = excluded.customer_name,
				total_sale_value = excluded.total_sale_value, commission_pct = excluded.commission_pct,
				gross_commission = excluded.gross_commission, net_commission = excluded.net_commission,
				status = excluded.status, currency = excluded.currency, sale_date = excluded.sale_date,
				commission_payouts = excluded.commission_payouts,
				customer_payments = excluded.customer_payments, synced = 0`,
			d.ID, d.DeveloperID, d.CustomerName, d.TotalSaleValue.String(),
			d.CommissionPct.String(), d.OurGrossCommission.String(), d.OurNetCommission.String(),
			string(d.Status), string(d.Currency), fmtTime(d.SaleDate), string(payouts), string(payments))
		if err != nil {
			return fmt.Errorf("upsert deal: %w", err)
		}
		return enqueueSync(ctx, tx, TableDeals, d.ID, SyncOpUpsert, dealRow(d))
	})
}

func (r *SQLiteRepository) DeleteDeal(ctx context.Context, id string) error {
	return r.deleteRecord(ctx, TableDeals, id)
}

func (r *SQLiteRepository) ListDeals(ctx context.Context) ([]core.RealEstateDeal, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, developer_id, customer_name, total_sale_value, commission_pct,
		       gross_commission, net_commission, status, currency, sale_date,
		       commission_payouts, customer_payments
		FROM real_estate_deals ORDER BY sale_date DESC`)
	if err != nil {
		return nil, fmt.Errorf("list deals: %w", err)
	}
	defer rows.Close()

	var deals []core.RealEstateDeal
	for rows.Next() {
		var (
			d                          core.RealEstateDeal
			total, pct, gross, net     string
			status, currency, saleDate string
			payouts, payments          string
		)
		if err := rows.Scan(&d.ID, &d.DeveloperID, &d.CustomerName, &total, &pct,
			&gross, &net, &status, &currency, &saleDate, &payouts, &payments); err != nil {
			return nil, fmt.Errorf("scan deal: %w", err)
		}
		d.TotalSaleValue = parseDecimal(total)
		d.CommissionPct = parseDecimal(pct)
		d.OurGrossCommission = parseDecimal(gross)
		d.OurNetCommission = parseDecimal(net)
		d.Status = core.DealStatus(status)
		d.Currency = core.Currency(currency)
		d.SaleDate = parseTime(saleDate)
		if err := json.Unmarshal([]byte(payouts), &d.CommissionPayouts); err != nil {
			return nil, fmt.Errorf("decode commission payouts for deal %s: %w", d.ID, err)
		}
		if err := json.Unmarshal([]byte(payments), &d.CustomerPayments); err != nil {
			return nil, fmt.Errorf("decode customer payments for deal %s: %w", d.ID, err)
		}
		deals = append(deals, d)
	}
	return deals, rows.Err()
}

func (r *SQLiteRepository) UpsertFarmOperation(ctx context.Context, o core.FarmOperation) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO farm_operations (id, date, type, category, amount, description, currency, synced)
			VALUES (?, ?, ?, ?, ?, ?, ?, 0)
			ON CONFLICT (id) DO UPDATE SET
				date = excluded.date, type = excluded.type, category = excluded.category,
				amount = excluded.amount, description = excluded.description,
				currency = excluded.currency, synced = 0`,
			o.ID, fmtTime(o.Date), string(o.Type), o.Category, o.Amount.String(),
			o.Description, string(o.Currency))
		if err != nil {
			return fmt.Errorf("upsert farm operation: %w", err)
		}
		return enqueueSync(ctx, tx, TableFarmOps, o.ID, SyncOpUpsert, farmOpRow(o))
	})
}

func (r *SQLiteRepository) DeleteFarmOperation(ctx context.Context, id string) error {
	return r.deleteRecord(ctx, TableFarmOps, id)
}

func (r *SQLiteRepository) ListFarmOperations(ctx context.Context) ([]core.FarmOperation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, date, type, category, amount, description, currency
		FROM farm_operations ORDER BY date DESC`)
	if err != nil {
		return nil, fmt.Errorf("list farm operations: %w", err)
	}
	defer rows.Close()

	var ops []core.FarmOperation
	for rows.Next() {
		var (
			o                           core.FarmOperation
			date, typ, amount, currency string
		)
		if err := rows.Scan(&o.ID, &date, &typ, &o.Category, &amount, &o.Description, &currency); err != nil {
			return nil, fmt.Errorf("scan farm operation: %w", err)
		}
		o.Date = parseTime(date)
		o.Type = core.FarmOperationType(typ)
		o.Amount = parseDecimal(amount)
		o.Currency = core.Currency(currency)
		ops = append(ops, o)
	}
	return ops, rows.Err()
}

func (r *SQLiteRepository) UpsertFamilyMember(ctx context.Context, m core.FamilyMember) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO family_members (id, name, birth_date, monthly_salary, monthly_benefits, monthly_child_benefit, synced)
			VALUES (?, ?, ?, ?, ?, ?, 0)
			ON CONFLICT (id) DO UPDATE SET
				name = excluded.name, birth_date = excluded.birth_date,
				monthly_salary = excluded.monthly_salary, monthly_benefits = excluded.monthly_benefits,
				monthly_child_benefit = excluded.monthly_child_benefit, synced = 0`,
			m.ID, m.Name, fmtTime(m.BirthDate), m.MonthlySalary.String(),
			m.MonthlyBenefits.String(), m.MonthlyChildBenefit.String())
		if err != nil {
			return fmt.Errorf("upsert family member: %w", err)
		}
		return enqueueSync(ctx, tx, TableFamily, m.ID, SyncOpUpsert, familyMemberRow(m))
	})
}

func (r *SQLiteRepository) DeleteFamilyMember(ctx context.Context, id string) error {
	return r.deleteRecord(ctx, TableFamily, id)
}

func (r *SQLiteRepository) ListFamilyMembers(ctx context.Context) ([]core.FamilyMember, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, birth_date, monthly_salary, monthly_benefits, monthly_child_benefit
		FROM family_members ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list family members: %w", err)
	}
	defer rows.Close()

	var members []core.FamilyMember
	for rows.Next() {
		var (
			m                              core.FamilyMember
			birth, salary, benefits, child string
		)
		if err := rows.Scan(&m.ID, &m.Name, &birth, &salary, &benefits, &child); err != nil {
			return nil, fmt.Errorf("scan family member: %w", err)
		}
		m.BirthDate = parseTime(birth)
		m.MonthlySalary = parseDecimal(salary)
		m.MonthlyBenefits = parseDecimal(benefits)
		m.MonthlyChildBenefit = parseDecimal(child)
		members = append(members, m)
	}
	return members, rows.Err()
}

func (r *SQLiteRepository) GetUserConfig(ctx context.Context) (core.UserConfig, error) {
	var (
		uc             core.UserConfig
		currency, role string
		subscription   string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT family_name, location, timezone, preferred_currency, language, role, subscription_status
		FROM user_config WHERE id = 1`).
		Scan(&uc.FamilyName, &uc.Location, &uc.Timezone, &currency, &uc.Language, &role, &subscription)
	if err != nil {
		return core.UserConfig{}, fmt.Errorf("read user config: %w", err)
	}
	uc.PreferredCurrency = core.Currency(currency)
	uc.Role = core.Role(role)
	uc.SubscriptionStatus = core.SubscriptionStatus(subscription)
	return uc, nil
}

func (r *SQLiteRepository) UpdateUserConfig(ctx context.Context, uc core.UserConfig) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE user_config SET family_name = ?, location = ?, timezone = ?,
		       preferred_currency = ?, language = ?, role = ? WHERE id = 1`,
		uc.FamilyName, uc.Location, uc.Timezone, string(uc.PreferredCurrency), uc.Language, string(uc.Role))
	if err != nil {
		return fmt.Errorf("update user config: %w", err)
	}
	return nil
}

// SetSubscriptionStatus is driven by billing webhooks only.
func (r *SQLiteRepository) SetSubscriptionStatus(ctx context.Context, status core.SubscriptionStatus) error {
	_, err := r.db.ExecContext(ctx, `UPDATE user_config SET subscription_status = ? WHERE id = 1`, string(status))
	if err != nil {
		return fmt.Errorf("set subscription status: %w", err)
	}
	return nil
}

// deleteRecord handles the shared delete-plus-enqueue path. The table name
// is always one of the package constants, never caller input.
func (r *SQLiteRepository) deleteRecord(ctx context.Context, table, id string) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, table), id)
		if err != nil {
			return fmt.Errorf("delete from %s: %w", table, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return enqueueSync(ctx, tx, table, id, SyncOpDelete, map[string]any{"id": id})
	})
}

func getBill(ctx context.Context, q querier, id string) (core.Bill, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, name, amount, currency, due_date, is_paid, category, is_recurring, frequency
		FROM bills WHERE id = ?`, id)
	b, err := scanBill(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Bill{}, ErrNotFound
	}
	return b, err
}

func scanBill(row rowScanner) (core.Bill, error) {
	var (
		b                     core.Bill
		amount, currency, due string
	)
	err := row.Scan(&b.ID, &b.Name, &amount, &currency, &due, &b.IsPaid, &b.Category, &b.IsRecurring, &b.Frequency)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Bill{}, err
		}
		return core.Bill{}, fmt.Errorf("scan bill: %w", err)
	}
	b.Amount = parseDecimal(amount)
	b.Currency = core.Currency(currency)
	b.DueDate = parseTime(due)
	return b, nil
}
