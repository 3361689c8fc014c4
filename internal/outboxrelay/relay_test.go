package outboxrelay

import (
	"context"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/go-petr/pet-exchange/internal/domain"
	"github.com/go-petr/pet-exchange/pkg/errorspkg"
)

type beforeMatcher struct {
	grace time.Duration
}

// Matches times at most grace ago, with a second of slack for test scheduling.
func (m beforeMatcher) Matches(x interface{}) bool {
	t, ok := x.(time.Time)
	if !ok {
		return false
	}

	age := time.Since(t)

	return age >= m.grace && age < m.grace+time.Second
}

func (m beforeMatcher) String() string {
	return "is " + m.grace.String() + " ago"
}

func TestDispatchPending(t *testing.T) {
	entries := []domain.OutboxEntry{
		{PurchaseID: uuid.New(), MarketID: 1},
		{PurchaseID: uuid.New(), MarketID: 2},
	}

	grace := 5 * time.Second

	testCases := []struct {
		name       string
		buildStubs func(outbox *MockOutbox, publisher *MockPublisher)
		wantN      int
		wantErr    error
	}{
		{
			name: "OK",
			buildStubs: func(outbox *MockOutbox, publisher *MockPublisher) {
				outbox.EXPECT().ListPending(gomock.Any(), beforeMatcher{grace}, gomock.Eq(int32(10))).
					Times(1).
					Return(entries, nil)

				gomock.InOrder(
					publisher.EXPECT().Publish(gomock.Any(), gomock.Eq(entries[0].WorkItem())).Return(nil),
					outbox.EXPECT().MarkDispatched(gomock.Any(), gomock.Eq(entries[0].PurchaseID)).Return(nil),
					publisher.EXPECT().Publish(gomock.Any(), gomock.Eq(entries[1].WorkItem())).Return(nil),
					outbox.EXPECT().MarkDispatched(gomock.Any(), gomock.Eq(entries[1].PurchaseID)).Return(nil),
				)
			},
			wantN: 2,
		},
		{
			name: "Empty",
			buildStubs: func(outbox *MockOutbox, publisher *MockPublisher) {
				outbox.EXPECT().ListPending(gomock.Any(), gomock.Any(), gomock.Any()).
					Times(1).
					Return([]domain.OutboxEntry{}, nil)
				publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Times(0)
			},
		},
		{
			name: "ListError",
			buildStubs: func(outbox *MockOutbox, publisher *MockPublisher) {
				outbox.EXPECT().ListPending(gomock.Any(), gomock.Any(), gomock.Any()).
					Times(1).
					Return(nil, errorspkg.ErrInternal)
				publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Times(0)
			},
			wantErr: errorspkg.ErrInternal,
		},
		{
			name: "PublishErrorStops",
			buildStubs: func(outbox *MockOutbox, publisher *MockPublisher) {
				outbox.EXPECT().ListPending(gomock.Any(), gomock.Any(), gomock.Any()).
					Times(1).
					Return(entries, nil)
				publisher.EXPECT().Publish(gomock.Any(), gomock.Eq(entries[0].WorkItem())).
					Times(1).
					Return(errorspkg.Retryable(domain.ErrLockConflict))
				outbox.EXPECT().MarkDispatched(gomock.Any(), gomock.Any()).Times(0)
			},
			wantErr: domain.ErrLockConflict,
		},
		{
			name: "MarkErrorStops",
			buildStubs: func(outbox *MockOutbox, publisher *MockPublisher) {
				outbox.EXPECT().ListPending(gomock.Any(), gomock.Any(), gomock.Any()).
					Times(1).
					Return(entries, nil)
				publisher.EXPECT().Publish(gomock.Any(), gomock.Eq(entries[0].WorkItem())).Times(1).Return(nil)
				outbox.EXPECT().MarkDispatched(gomock.Any(), gomock.Eq(entries[0].PurchaseID)).
					Times(1).
					Return(errorspkg.ErrInternal)
			},
			wantErr: errorspkg.ErrInternal,
		},
	}

	for i := range testCases {
		tc := testCases[i]

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			outbox := NewMockOutbox(ctrl)
			publisher := NewMockPublisher(ctrl)
			tc.buildStubs(outbox, publisher)

			relay := New(outbox, publisher, time.Second, grace, 10)

			n, err := relay.DispatchPending(context.Background())
			require.ErrorIs(t, err, tc.wantErr)
			require.Equal(t, tc.wantN, n)
		})
	}
}

func TestRun(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	entry := domain.OutboxEntry{PurchaseID: uuid.New(), MarketID: 3}
	dispatched := make(chan struct{})

	outbox := NewMockOutbox(ctrl)
	publisher := NewMockPublisher(ctrl)

	outbox.EXPECT().ListPending(gomock.Any(), gomock.Any(), gomock.Any()).
		Return([]domain.OutboxEntry{entry}, nil).
		Times(1)
	outbox.EXPECT().ListPending(gomock.Any(), gomock.Any(), gomock.Any()).
		Return([]domain.OutboxEntry{}, nil).
		AnyTimes()
	publisher.EXPECT().Publish(gomock.Any(), gomock.Eq(entry.WorkItem())).Return(nil).Times(1)
	outbox.EXPECT().MarkDispatched(gomock.Any(), gomock.Eq(entry.PurchaseID)).
		DoAndReturn(func(context.Context, uuid.UUID) error {
			close(dispatched)
			return nil
		}).
		Times(1)

	relay := New(outbox, publisher, 5*time.Millisecond, 0, 10)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() { done <- relay.Run(ctx) }()

	select {
	case <-dispatched:
	case <-time.After(5 * time.Second):
		t.Fatal("relay did not dispatch pending entry")
	}

	cancel()
	require.NoError(t, <-done)
}
