// Package httpserver manages server creation and api routing.
package httpserver

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/go-petr/pet-exchange/internal/marketrepo"
	"github.com/go-petr/pet-exchange/internal/middleware"
	"github.com/go-petr/pet-exchange/internal/outboxrepo"
	"github.com/go-petr/pet-exchange/internal/purchasedelivery"
	"github.com/go-petr/pet-exchange/internal/purchaserepo"
	"github.com/go-petr/pet-exchange/internal/purchaseservice"
	"github.com/go-petr/pet-exchange/internal/transactionrepo"
	"github.com/go-petr/pet-exchange/internal/walletdelivery"
	"github.com/go-petr/pet-exchange/internal/walletrepo"
	"github.com/go-petr/pet-exchange/internal/walletservice"
	"github.com/go-petr/pet-exchange/pkg/configpkg"
	"github.com/go-petr/pet-exchange/pkg/currencypkg"
	"github.com/go-petr/pet-exchange/pkg/tokenpkg"
)

// Server holds db connection, handlers router and configuration.
type Server struct {
	DB         *sql.DB
	Engine     *gin.Engine
	Config     configpkg.Config
	TokenMaker tokenpkg.Maker
}

// ServeHTTP implements the http.Handler interface for the Server type.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Engine.ServeHTTP(w, r)
}

// New creates Server type with instantiated domains and routes.
// Settlement work items of new purchases are handed to publisher.
func New(conn *sql.DB, publisher purchaseservice.Publisher, logger zerolog.Logger, config configpkg.Config) (*Server, error) {
	purchaseRepo := purchaserepo.NewRepoPGS(conn)
	marketRepo := marketrepo.NewRepoPGS(conn)
	walletRepo := walletrepo.NewRepoPGS(conn)
	transactionRepo := transactionrepo.NewRepoPGS(conn)
	outboxRepo := outboxrepo.NewRepoPGS(conn)

	tokenMaker, err := tokenpkg.NewPasetoMaker(config.TokenSymmetricKey)
	if err != nil {
		return nil, errors.New("cannot create token maker")
	}

	purchaseService := purchaseservice.New(purchaseRepo, marketRepo, publisher, outboxRepo)
	walletService := walletservice.New(walletRepo, transactionRepo)

	purchaseHandler := purchasedelivery.NewHandler(purchaseService)
	walletHandler := walletdelivery.NewHandler(walletService)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	engine.Use(middleware.RequestLogger(logger))
	engine.Use(gin.Recovery())

	authRoutes := engine.Group("/").Use(middleware.AuthMiddleware(tokenMaker))

	authRoutes.POST("/purchases", purchaseHandler.Create)
	authRoutes.GET("/purchases/:id", purchaseHandler.Get)
	authRoutes.GET("/purchases", purchaseHandler.List)

	authRoutes.GET("/wallets", walletHandler.List)
	authRoutes.GET("/wallets/:id/transactions", walletHandler.ListTransactions)

	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		err := v.RegisterValidation("symbol", currencypkg.ValidSymbol)
		if err != nil {
			return nil, errors.New("cannot register symbol validator")
		}
	}

	server := &Server{
		DB:         conn,
		Engine:     engine,
		Config:     config,
		TokenMaker: tokenMaker,
	}

	return server, nil
}
