package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"paycenter/internal/pkg/config"
	"paycenter/pkg/utils"
)

// 为运维人员签发访问令牌
func main() {
	var (
		operator = flag.String("operator", "", "operator account")
		admin    = flag.Bool("admin", false, "grant repair and sweep permission")
		ttl      = flag.Duration("ttl", 0, "token lifetime, defaults to jwt.expire hours")
	)
	flag.Parse()
	if *operator == "" {
		log.Fatal("-operator is required")
	}

	config.LoadConfig()
	cfg := config.GlobalConfig.JWT

	lifetime := *ttl
	if lifetime <= 0 {
		lifetime = time.Duration(cfg.Expire) * time.Hour
	}
	role := utils.RoleOperator
	if *admin {
		role = utils.RoleAdmin
	}

	token, expiresAt, err := utils.GenerateToken(*operator, role, cfg.Secret, lifetime)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(token)
	log.Printf("expires at %s", expiresAt.Format(time.RFC3339))
}
