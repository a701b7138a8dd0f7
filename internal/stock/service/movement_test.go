package service

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/farmabase/farmabase-backend/internal/stock/domain"
	"github.com/farmabase/farmabase-backend/internal/stock/repository"
	"github.com/farmabase/farmabase-backend/pkg/logger"
	"github.com/farmabase/farmabase-backend/pkg/testutil"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMovementServiceForTest(t *testing.T) (*MovementService, *testutil.MockDB) {
	mockDB := testutil.NewMockDB(t)
	log := logger.New("test", "development")

	svc := NewMovementService(
		mockDB.DB,
		repository.NewStockRepository(mockDB.DB),
		repository.NewMovementRepository(mockDB.DB),
		repository.NewMedicationRepository(mockDB.DB),
		nil, // no broker in unit tests
		log,
	)
	return svc, mockDB
}

func validEntradaRequest(medicationID, establishmentID string) *EntradaRequest {
	return &EntradaRequest{
		Subtype:         domain.SubtypeCompra,
		DocumentNumber:  "NF-1001",
		DocumentDate:    time.Now().UTC(),
		EstablishmentID: establishmentID,
		Items: []EntradaItem{
			{
				MedicationID: medicationID,
				LotNumber:    "L1",
				ExpiryDate:   time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC),
				Manufacturer: "Pharma Ltda",
				Quantity:     100,
				UnitCost:     decimal.RequireFromString("2.00"),
			},
		},
	}
}

func medicationRows(id string, minimumStock int) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "active_ingredient", "concentration", "form",
		"minimum_stock", "controlled_category", "created_at", "updated_at",
	}).AddRow(id, "Dipirona", "500mg", "comprimido", minimumStock, nil, time.Now(), time.Now())
}

func lotRows(medicationID, establishmentID string, quantities ...int) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{
		"id", "medication_id", "establishment_id", "lot_number", "expiry_date",
		"quantity", "unit_cost", "manufacturer", "origin_movement_id",
		"created_at", "updated_at",
	})
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, qty := range quantities {
		rows.AddRow(
			string(rune('a'+i)), medicationID, establishmentID,
			"L"+string(rune('1'+i)), base.AddDate(0, i, 0),
			qty, "2.00", "Pharma Ltda", "mov-origin",
			time.Now(), time.Now(),
		)
	}
	return rows
}

func TestRecordEntrada_Success(t *testing.T) {
	svc, mockDB := newMovementServiceForTest(t)
	defer mockDB.Close()

	medID := uuid.New().String()
	estID := uuid.New().String()
	req := validEntradaRequest(medID, estID)

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("SELECT EXISTS").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mockDB.ExpectQuery("INSERT INTO movements").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	mockDB.ExpectQuery("SELECT * FROM medications WHERE id = $1").
		WillReturnRows(medicationRows(medID, 10))
	mockDB.ExpectQuery("INSERT INTO lots").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(time.Now(), time.Now()))
	mockDB.ExpectExec("INSERT INTO aggregate_stock").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectExec("INSERT INTO movement_items").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectCommit()

	movement, err := svc.RecordEntrada(context.Background(), req)
	require.NoError(t, err)

	assert.NotEmpty(t, movement.ID)
	require.Len(t, movement.Items, 1)
	assert.Equal(t, "L1", movement.Items[0].LotNumber)
	assert.Equal(t, 100, movement.Items[0].Quantity)
	assert.True(t, movement.TotalValue.Equal(decimal.RequireFromString("200.00")))

	mockDB.ExpectationsWereMet(t)
}

func TestRecordEntrada_DuplicateDocument(t *testing.T) {
	svc, mockDB := newMovementServiceForTest(t)
	defer mockDB.Close()

	req := validEntradaRequest(uuid.New().String(), uuid.New().String())

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("SELECT EXISTS").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mockDB.ExpectRollback()

	_, err := svc.RecordEntrada(context.Background(), req)

	var dup *domain.DuplicateDocumentError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "NF-1001", dup.DocumentNumber)

	mockDB.ExpectationsWereMet(t)
}

func TestRecordEntrada_RejectsOutflowSubtype(t *testing.T) {
	svc, mockDB := newMovementServiceForTest(t)
	defer mockDB.Close()

	req := validEntradaRequest(uuid.New().String(), uuid.New().String())
	req.Subtype = domain.SubtypePerda

	_, err := svc.RecordEntrada(context.Background(), req)
	require.Error(t, err)
}

func validSaidaRequest(medicationID, establishmentID string) *SaidaRequest {
	return &SaidaRequest{
		Subtype:         domain.SubtypeAjusteSaida,
		DocumentNumber:  "SAI-1001",
		DocumentDate:    time.Now().UTC().Add(24 * time.Hour),
		EstablishmentID: establishmentID,
		Justification:   "ajuste",
		Items: []SaidaItem{
			{MedicationID: medicationID, Quantity: 15},
		},
	}
}

func TestRecordSaida_DepletesLotsByExpiry(t *testing.T) {
	svc, mockDB := newMovementServiceForTest(t)
	defer mockDB.Close()

	medID := uuid.New().String()
	estID := uuid.New().String()
	req := validSaidaRequest(medID, estID)

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("SELECT EXISTS").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mockDB.ExpectQuery("SELECT * FROM medications WHERE id = $1").
		WillReturnRows(medicationRows(medID, 20))
	mockDB.ExpectQuery("SELECT quantity FROM aggregate_stock").
		WillReturnRows(sqlmock.NewRows([]string{"quantity"}).AddRow(30))
	mockDB.ExpectQuery("SELECT * FROM lots").
		WillReturnRows(lotRows(medID, estID, 10, 10, 10))
	mockDB.ExpectQuery("INSERT INTO movements").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	// Two lots consumed: 10 from the earliest expiry, 5 from the next
	mockDB.ExpectExec("UPDATE lots SET quantity = quantity - $2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectExec("INSERT INTO movement_items").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectExec("UPDATE lots SET quantity = quantity - $2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectExec("INSERT INTO movement_items").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectExec("INSERT INTO aggregate_stock").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectCommit()

	result, err := svc.RecordSaida(context.Background(), req)
	require.NoError(t, err)

	movement := result.Movement
	require.Len(t, movement.Items, 2)
	assert.Equal(t, "a", movement.Items[0].LotID)
	assert.Equal(t, 10, movement.Items[0].Quantity)
	assert.Equal(t, "b", movement.Items[1].LotID)
	assert.Equal(t, 5, movement.Items[1].Quantity)

	// 30 on hand minus 15 leaves 15, below the minimum of 20
	require.Len(t, result.LowStock, 1)
	assert.Equal(t, medID, result.LowStock[0].MedicationID)
	assert.Equal(t, 15, result.LowStock[0].Quantity)
	assert.Equal(t, 20, result.LowStock[0].MinimumStock)

	mockDB.ExpectationsWereMet(t)
}

func TestRecordSaida_InsufficientAggregateStock(t *testing.T) {
	svc, mockDB := newMovementServiceForTest(t)
	defer mockDB.Close()

	medID := uuid.New().String()
	req := validSaidaRequest(medID, uuid.New().String())

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("SELECT EXISTS").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mockDB.ExpectQuery("SELECT * FROM medications WHERE id = $1").
		WillReturnRows(medicationRows(medID, 0))
	mockDB.ExpectQuery("SELECT quantity FROM aggregate_stock").
		WillReturnRows(sqlmock.NewRows([]string{"quantity"}).AddRow(10))
	mockDB.ExpectRollback()

	_, err := svc.RecordSaida(context.Background(), req)

	var insufficient *domain.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, domain.LevelAggregate, insufficient.Level)
	assert.Equal(t, 15, insufficient.Requested)
	assert.Equal(t, 10, insufficient.Available)

	mockDB.ExpectationsWereMet(t)
}

func TestRecordSaida_LotLevelDriftDetected(t *testing.T) {
	svc, mockDB := newMovementServiceForTest(t)
	defer mockDB.Close()

	medID := uuid.New().String()
	estID := uuid.New().String()
	req := validSaidaRequest(medID, estID)

	// The aggregate says 30 but the lots only hold 12: the independent
	// lot-level check must catch the drift.
	mockDB.ExpectBegin()
	mockDB.ExpectQuery("SELECT EXISTS").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mockDB.ExpectQuery("SELECT * FROM medications WHERE id = $1").
		WillReturnRows(medicationRows(medID, 0))
	mockDB.ExpectQuery("SELECT quantity FROM aggregate_stock").
		WillReturnRows(sqlmock.NewRows([]string{"quantity"}).AddRow(30))
	mockDB.ExpectQuery("SELECT * FROM lots").
		WillReturnRows(lotRows(medID, estID, 7, 5))
	mockDB.ExpectRollback()

	_, err := svc.RecordSaida(context.Background(), req)

	var insufficient *domain.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, domain.LevelLot, insufficient.Level)
	assert.Equal(t, 12, insufficient.Available)

	mockDB.ExpectationsWereMet(t)
}

func TestRecordSaida_RejectsPastDate(t *testing.T) {
	svc, mockDB := newMovementServiceForTest(t)
	defer mockDB.Close()

	req := validSaidaRequest(uuid.New().String(), uuid.New().String())
	req.DocumentDate = time.Now().UTC().AddDate(0, 0, -1)

	_, err := svc.RecordSaida(context.Background(), req)

	var invalidDate *domain.InvalidDateError
	require.ErrorAs(t, err, &invalidDate)
}

func TestRecordSaida_RequiresJustification(t *testing.T) {
	svc, mockDB := newMovementServiceForTest(t)
	defer mockDB.Close()

	req := validSaidaRequest(uuid.New().String(), uuid.New().String())
	req.Justification = "   "

	_, err := svc.RecordSaida(context.Background(), req)

	var missing *domain.MissingJustificationError
	require.ErrorAs(t, err, &missing)
}

func TestRecordSaida_RejectsInflowSubtype(t *testing.T) {
	svc, mockDB := newMovementServiceForTest(t)
	defer mockDB.Close()

	req := validSaidaRequest(uuid.New().String(), uuid.New().String())
	req.Subtype = domain.SubtypeCompra

	_, err := svc.RecordSaida(context.Background(), req)
	require.Error(t, err)
}

func TestAggregateLines_MergesDuplicates(t *testing.T) {
	override := decimal.RequireFromString("1.50")
	lines := aggregateLines([]SaidaItem{
		{MedicationID: "m1", Quantity: 5},
		{MedicationID: "m2", Quantity: 3, UnitValueOverride: &override},
		{MedicationID: "m1", Quantity: 7},
	})

	require.Len(t, lines, 2)
	assert.Equal(t, "m1", lines[0].MedicationID)
	assert.Equal(t, 12, lines[0].Quantity)
	assert.Equal(t, "m2", lines[1].MedicationID)
	assert.Equal(t, 3, lines[1].Quantity)
	require.NotNil(t, lines[1].UnitValueOverride)
	assert.True(t, lines[1].UnitValueOverride.Equal(override))
}

func TestBeforeToday(t *testing.T) {
	now := time.Now().UTC()
	assert.True(t, beforeToday(now.AddDate(0, 0, -1)))
	assert.False(t, beforeToday(now))
	assert.False(t, beforeToday(now.AddDate(0, 0, 1)))
}

func TestGenerateDocumentNumber(t *testing.T) {
	first := generateDocumentNumber("SAI")
	second := generateDocumentNumber("SAI")

	assert.NotEqual(t, first, second)
	assert.Contains(t, first, "SAI-")
}

func TestRecordSaida_SerializationFailureAborts(t *testing.T) {
	svc, mockDB := newMovementServiceForTest(t)
	defer mockDB.Close()

	medID := uuid.New().String()
	estID := uuid.New().String()
	req := validSaidaRequest(medID, estID)

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("SELECT EXISTS").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mockDB.ExpectQuery("SELECT * FROM medications WHERE id = $1").
		WillReturnRows(medicationRows(medID, 0))
	mockDB.ExpectQuery("SELECT quantity FROM aggregate_stock").
		WillReturnRows(sqlmock.NewRows([]string{"quantity"}).AddRow(30))
	mockDB.ExpectQuery("SELECT * FROM lots").
		WillReturnRows(lotRows(medID, estID, 30))
	mockDB.ExpectQuery("INSERT INTO movements").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	mockDB.ExpectExec("UPDATE lots SET quantity = quantity - $2").
		WillReturnError(&pq.Error{Code: "40001"})
	mockDB.ExpectRollback()

	_, err := svc.RecordSaida(context.Background(), req)

	var pqErr *pq.Error
	require.ErrorAs(t, err, &pqErr)
	assert.Equal(t, pq.ErrorCode("40001"), pqErr.Code)

	mockDB.ExpectationsWereMet(t)
}

func TestStockPosition_FlagsAggregateLotDrift(t *testing.T) {
	svc, mockDB := newMovementServiceForTest(t)
	defer mockDB.Close()

	medID := uuid.New().String()
	estID := uuid.New().String()

	mockDB.ExpectQuery("SELECT quantity FROM aggregate_stock").
		WillReturnRows(sqlmock.NewRows([]string{"quantity"}).AddRow(30))
	mockDB.ExpectQuery("SELECT SUM(quantity) FROM lots").
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(25))
	mockDB.ExpectQuery("SELECT * FROM lots").
		WillReturnRows(lotRows(medID, estID, 10, 15))

	position, err := svc.StockPosition(context.Background(), medID, estID)
	require.NoError(t, err)

	assert.Equal(t, 30, position.AggregateQuantity)
	assert.Equal(t, 25, position.LotQuantity)
	assert.False(t, position.Consistent)
	assert.Len(t, position.Lots, 2)

	mockDB.ExpectationsWereMet(t)
}

func TestStockBookkeeping_AggregateTracksLots(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	log := logger.New("test", "development")
	stockRepo := repository.NewStockRepository(mockDB.DB)
	medRepo := repository.NewMedicationRepository(mockDB.DB)
	movements := NewMovementService(
		mockDB.DB, stockRepo, repository.NewMovementRepository(mockDB.DB), medRepo, nil, log)
	dispensations := NewDispensationService(
		mockDB.DB, stockRepo, repository.NewDispensationRepository(mockDB.DB), medRepo, nil, log)

	medID := uuid.New().String()
	estID := uuid.New().String()

	// Receive 100 units into a fresh lot.
	mockDB.ExpectBegin()
	mockDB.ExpectQuery("SELECT EXISTS").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mockDB.ExpectQuery("INSERT INTO movements").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	mockDB.ExpectQuery("SELECT * FROM medications WHERE id = $1").
		WillReturnRows(medicationRows(medID, 0))
	mockDB.ExpectQuery("INSERT INTO lots").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(time.Now(), time.Now()))
	mockDB.ExpectExec("INSERT INTO aggregate_stock").
		WithArgs(medID, estID, 100).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectExec("INSERT INTO movement_items").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectCommit()

	_, err := movements.RecordEntrada(context.Background(), validEntradaRequest(medID, estID))
	require.NoError(t, err)

	// Issue 30 units; the aggregate delta must mirror the lot decrement.
	saida := validSaidaRequest(medID, estID)
	saida.DocumentNumber = "SAI-2001"
	saida.Items[0].Quantity = 30

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("SELECT EXISTS").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mockDB.ExpectQuery("SELECT * FROM medications WHERE id = $1").
		WillReturnRows(medicationRows(medID, 0))
	mockDB.ExpectQuery("SELECT quantity FROM aggregate_stock").
		WillReturnRows(sqlmock.NewRows([]string{"quantity"}).AddRow(100))
	mockDB.ExpectQuery("SELECT * FROM lots").
		WillReturnRows(lotRows(medID, estID, 100))
	mockDB.ExpectQuery("INSERT INTO movements").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	mockDB.ExpectExec("UPDATE lots SET quantity = quantity - $2").
		WithArgs("a", 30).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectExec("INSERT INTO movement_items").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectExec("INSERT INTO aggregate_stock").
		WithArgs(medID, estID, -30).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectCommit()

	_, err = movements.RecordSaida(context.Background(), saida)
	require.NoError(t, err)

	// Dispense 20 units from the remaining 70.
	mockDB.ExpectBegin()
	mockDB.ExpectQuery("SELECT * FROM medications WHERE id = $1").
		WillReturnRows(medicationRows(medID, 0))
	mockDB.ExpectQuery("SELECT quantity FROM aggregate_stock").
		WillReturnRows(sqlmock.NewRows([]string{"quantity"}).AddRow(70))
	mockDB.ExpectQuery("SELECT * FROM lots").
		WillReturnRows(lotRows(medID, estID, 70))
	mockDB.ExpectQuery("SELECT d.dispensed_at").
		WillReturnRows(sqlmock.NewRows([]string{"dispensed_at"}))
	mockDB.ExpectQuery("INSERT INTO dispensations").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	mockDB.ExpectExec("UPDATE lots SET quantity = quantity - $2").
		WithArgs("a", 20).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectExec("INSERT INTO dispensation_items").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectExec("INSERT INTO aggregate_stock").
		WithArgs(medID, estID, -20).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectCommit()

	_, err = dispensations.Dispense(context.Background(), validDispensationRequest(medID, estID))
	require.NoError(t, err)

	// After 100 in, 30 out and 20 dispensed the two levels agree at 50.
	mockDB.ExpectQuery("SELECT quantity FROM aggregate_stock").
		WillReturnRows(sqlmock.NewRows([]string{"quantity"}).AddRow(50))
	mockDB.ExpectQuery("SELECT SUM(quantity) FROM lots").
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(50))
	mockDB.ExpectQuery("SELECT * FROM lots").
		WillReturnRows(lotRows(medID, estID, 50))

	position, err := movements.StockPosition(context.Background(), medID, estID)
	require.NoError(t, err)
	assert.True(t, position.Consistent)
	assert.Equal(t, 50, position.AggregateQuantity)

	mockDB.ExpectationsWereMet(t)
}
