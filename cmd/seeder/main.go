package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/installment-service/internal/config"
	"github.com/Dan9191/installment-service/internal/ledger"
	"github.com/Dan9191/installment-service/internal/models"
	"github.com/Dan9191/installment-service/internal/repository"
)

const TotalPlans = 200

var planShapes = []struct {
	planType models.PlanType
	count    int
	cadence  int
}{
	{models.PlanTypeFull, 1, 0},
	{models.PlanTypeMonthly, 10, 1},
	{models.PlanTypeQuarterly, 4, 3},
	{models.PlanTypeCustom, 6, 2},
}

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.NewConfig()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	if cfg.StoreDriver != "postgres" {
		logger.Fatal("Seeder needs STORE_DRIVER=postgres")
	}

	ctx := context.Background()
	conn, err := pgx.Connect(ctx, cfg.DBConn)
	if err != nil {
		logger.Fatalf("Unable to connect to database: %v", err)
	}
	defer conn.Close(ctx)

	if _, err := conn.Exec(ctx, repository.Schema); err != nil {
		logger.Fatalf("Failed to migrate schema: %v", err)
	}

	var count int
	if err := conn.QueryRow(ctx, "SELECT COUNT(*) FROM billing.payment_plans").Scan(&count); err != nil {
		logger.Fatalf("Failed to count plans: %v", err)
	}
	if count >= TotalPlans {
		logger.Infof("Database already has %d plans. Skipping.", count)
		return
	}

	logger.Infof("Generating %d plans...", TotalPlans)
	planRows, installmentRows, err := generate(time.Now().In(cfg.Location))
	if err != nil {
		logger.Fatalf("Failed to generate plans: %v", err)
	}

	tx, err := conn.Begin(ctx)
	if err != nil {
		logger.Fatalf("Failed to begin transaction: %v", err)
	}
	defer tx.Rollback(ctx)

	plans, err := tx.CopyFrom(ctx,
		pgx.Identifier{"billing", "payment_plans"},
		[]string{"id", "parent_name", "parent_email", "total_amount", "installment_count", "cadence_months",
			"plan_type", "description", "start_date", "revision", "created_at", "updated_at"},
		pgx.CopyFromRows(planRows),
	)
	if err != nil {
		logger.Fatalf("Bulk insert of plans failed: %v", err)
	}
	installments, err := tx.CopyFrom(ctx,
		pgx.Identifier{"billing", "installments"},
		[]string{"id", "plan_id", "installment_number", "amount", "due_date", "status", "paid_at", "created_at", "updated_at"},
		pgx.CopyFromRows(installmentRows),
	)
	if err != nil {
		logger.Fatalf("Bulk insert of installments failed: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		logger.Fatalf("Failed to commit seed: %v", err)
	}

	logger.Infof("Successfully seeded %d plans with %d installments.", plans, installments)
}

// generate builds demo plans with start dates spread over the past year so
// the dashboard shows a mix of paid-off, current and overdue ledgers. Every
// fifth plan leaves its past-due installments unpaid; the rest paid on the
// due date.
func generate(now time.Time) ([][]any, [][]any, error) {
	var plans, installments [][]any
	today := ledger.DateOf(now)

	for i := 0; i < TotalPlans; i++ {
		shape := planShapes[i%len(planShapes)]
		total := int64(50000 + (i%17)*2500)
		start := today.AddDate(0, -(i % 12), 0)

		l, err := ledger.GenerateSchedule(ledger.ScheduleParams{
			TotalAmount:      total,
			InstallmentCount: shape.count,
			CadenceMonths:    shape.cadence,
			StartDate:        start,
			CreatedAt:        now,
		})
		if err != nil {
			return nil, nil, err
		}

		plans = append(plans, []any{
			pgUUID(l.PlanID()), fmt.Sprintf("Parent %03d", i+1), fmt.Sprintf("parent%03d@example.com", i+1),
			total, shape.count, shape.cadence, string(shape.planType), "Demo tuition plan",
			start, int64(0), now, now,
		})
		for _, inst := range l.Installments() {
			if i%5 != 0 && inst.DueDate.Before(today) {
				if inst, err = ledger.CapturePayment(inst, inst.DueDate); err != nil {
					return nil, nil, err
				}
			}
			installments = append(installments, []any{
				pgUUID(inst.ID), pgUUID(inst.PlanID), inst.InstallmentNumber, inst.Amount, inst.DueDate,
				string(inst.Status), inst.PaidAt, inst.CreatedAt, inst.UpdatedAt,
			})
		}
	}
	return plans, installments, nil
}

func pgUUID(id [16]byte) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}
