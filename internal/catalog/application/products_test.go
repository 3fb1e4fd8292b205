package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-storefront/internal/catalog/adapters"
	"go-storefront/pkg/errors"
	"go-storefront/pkg/logger"
	"go-storefront/pkg/money"
)

// MockPromotionIndex records refreshes and serves fixed memberships
type MockPromotionIndex struct {
	refreshed []uint
	detached  []uint
	applied   map[uint][]uint
}

func NewMockPromotionIndex() *MockPromotionIndex {
	return &MockPromotionIndex{applied: make(map[uint][]uint)}
}

func (m *MockPromotionIndex) RefreshProductPrice(ctx context.Context, productID uint) error {
	m.refreshed = append(m.refreshed, productID)
	return nil
}

func (m *MockPromotionIndex) AppliedPromotionIDs(ctx context.Context, productIDs []uint) (map[uint][]uint, error) {
	result := make(map[uint][]uint)
	for _, id := range productIDs {
		if ids, ok := m.applied[id]; ok {
			result[id] = ids
		}
	}
	return result, nil
}

func (m *MockPromotionIndex) DetachProduct(ctx context.Context, productID uint) error {
	m.detached = append(m.detached, productID)
	return nil
}

func TestCreateProduct(t *testing.T) {
	// Arrange
	uc := NewProductUseCase(adapters.NewMemoryProductRepository(), NewMockPromotionIndex(), 8, logger.NewNop())

	// Act
	p, err := uc.CreateProduct(context.Background(), CreateProductInput{
		Name:         "Headphones",
		Category:     "Audio",
		Price:        money.MustParse("59.999"),
		CountInStock: 4,
	})

	// Assert
	require.NoError(t, err)
	assert.NotZero(t, p.ID)
	assert.Equal(t, "60.00", money.Format(p.Price))
}

func TestGetProduct_AttachesAppliedPromotions(t *testing.T) {
	repo := adapters.NewMemoryProductRepository()
	index := NewMockPromotionIndex()
	uc := NewProductUseCase(repo, index, 8, logger.NewNop())
	p := seedProduct(t, repo, "Lamp", "10.00", 1)
	index.applied[p.ID] = []uint{4, 7}

	got, err := uc.GetProduct(context.Background(), p.ID)

	require.NoError(t, err)
	assert.Equal(t, []uint{4, 7}, got.PromotionIDs)
}

func TestListProducts_PaginatesAndFilters(t *testing.T) {
	repo := adapters.NewMemoryProductRepository()
	uc := NewProductUseCase(repo, NewMockPromotionIndex(), 2, logger.NewNop())
	seedProduct(t, repo, "Red Lamp", "10.00", 1)
	seedProduct(t, repo, "Blue Lamp", "10.00", 1)
	seedProduct(t, repo, "Green Lamp", "10.00", 1)
	seedProduct(t, repo, "Desk", "10.00", 1)

	out, err := uc.ListProducts(context.Background(), ListProductsInput{Keyword: "lamp", Page: 2})

	require.NoError(t, err)
	assert.Equal(t, 2, out.Pages)
	require.Len(t, out.Products, 1)
	assert.Equal(t, "Green Lamp", out.Products[0].Name)
}

func TestUpdateProduct_PriceChangeRefreshesDiscount(t *testing.T) {
	// Arrange
	repo := adapters.NewMemoryProductRepository()
	index := NewMockPromotionIndex()
	uc := NewProductUseCase(repo, index, 8, logger.NewNop())
	p := seedProduct(t, repo, "Lamp", "100.00", 1)
	discount := money.MustParse("80.00")
	ok, err := repo.CompareAndSetDiscount(context.Background(), p.ID, p.Price, nil, &discount)
	require.NoError(t, err)
	require.True(t, ok)

	// Act
	got, err := uc.UpdateProduct(context.Background(), UpdateProductInput{
		ID:           p.ID,
		Name:         "Lamp",
		Price:        money.MustParse("50.00"),
		CountInStock: 1,
	})

	// Assert
	require.NoError(t, err)
	assert.Nil(t, got.DiscountPrice)
	assert.Equal(t, []uint{p.ID}, index.refreshed)
}

func TestUpdateProduct_SamePriceKeepsDiscount(t *testing.T) {
	repo := adapters.NewMemoryProductRepository()
	index := NewMockPromotionIndex()
	uc := NewProductUseCase(repo, index, 8, logger.NewNop())
	p := seedProduct(t, repo, "Lamp", "100.00", 1)

	_, err := uc.UpdateProduct(context.Background(), UpdateProductInput{
		ID:           p.ID,
		Name:         "Desk Lamp",
		Price:        money.MustParse("100.00"),
		CountInStock: 9,
	})

	require.NoError(t, err)
	assert.Empty(t, index.refreshed)
	assert.Equal(t, 9, repo.Stock(p.ID))
}

func TestDeleteProduct_DetachesPromotions(t *testing.T) {
	repo := adapters.NewMemoryProductRepository()
	index := NewMockPromotionIndex()
	uc := NewProductUseCase(repo, index, 8, logger.NewNop())
	p := seedProduct(t, repo, "Lamp", "10.00", 1)

	require.NoError(t, uc.DeleteProduct(context.Background(), p.ID))

	assert.Equal(t, []uint{p.ID}, index.detached)
	_, err := uc.GetProduct(context.Background(), p.ID)
	assert.True(t, errors.Is(err, errors.CodeNotFound))
}

func TestCreateReview_OnePerUserAndMeanRating(t *testing.T) {
	// Arrange
	repo := adapters.NewMemoryProductRepository()
	uc := NewProductUseCase(repo, NewMockPromotionIndex(), 8, logger.NewNop())
	p := seedProduct(t, repo, "Lamp", "10.00", 1)
	ctx := context.Background()

	// Act
	_, err := uc.CreateReview(ctx, CreateReviewInput{ProductID: p.ID, UserID: 1, UserName: "Ana", Rating: 5, Comment: "great"})
	require.NoError(t, err)
	_, err = uc.CreateReview(ctx, CreateReviewInput{ProductID: p.ID, UserID: 2, UserName: "Ben", Rating: 2, Comment: "meh"})
	require.NoError(t, err)
	_, dupErr := uc.CreateReview(ctx, CreateReviewInput{ProductID: p.ID, UserID: 1, UserName: "Ana", Rating: 1, Comment: "again"})

	// Assert
	assert.True(t, errors.Is(dupErr, errors.CodeConflict))
	got, err := uc.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.NumReviews)
	assert.InDelta(t, 3.5, got.Rating, 1e-9)
}

func TestTopProductsAndCategories(t *testing.T) {
	repo := adapters.NewMemoryProductRepository()
	uc := NewProductUseCase(repo, NewMockPromotionIndex(), 8, logger.NewNop())
	ctx := context.Background()
	for i, name := range []string{"A", "B", "C", "D"} {
		p := seedProduct(t, repo, name, "10.00", 1)
		_, err := uc.CreateReview(ctx, CreateReviewInput{ProductID: p.ID, UserID: 1, UserName: "Ana", Rating: i + 1, Comment: "ok"})
		require.NoError(t, err)
	}

	top, err := uc.TopProducts(ctx)
	require.NoError(t, err)
	require.Len(t, top, 3)
	assert.Equal(t, "D", top[0].Name)

	categories, err := uc.Categories(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Gear"}, categories)
}
