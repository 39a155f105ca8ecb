// Copyright 2025 MRCIS Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrcis/mrcis/pkg/model"
)

func tasksOf(res *model.ExtractionResult) []*model.CodeEntity {
	var out []*model.CodeEntity
	for _, f := range res.Functions {
		if f.Kind == model.KindTask {
			out = append(out, f)
		}
	}
	return out
}

func TestRakeTaskExtraction(t *testing.T) {
	code := `task :migrate do
  puts "Running migrations"
end
`
	res, err := NewRubyExtractor().Extract(writeSource(t, "deploy.rake", code))
	require.NoError(t, err)

	tasks := tasksOf(res)
	require.Len(t, tasks, 1)
	assert.Equal(t, "migrate", tasks[0].SimpleName)
}

func TestRakeNamespace(t *testing.T) {
	code := `namespace :db do
  task :migrate do
  end
end
`
	res, err := NewRubyExtractor().Extract(writeSource(t, "tasks.rake", code))
	require.NoError(t, err)

	require.NotEmpty(t, res.Modules)
	assert.Equal(t, "db", res.Modules[0].SimpleName)
}

func TestRakeNestedQualifiedName(t *testing.T) {
	code := `namespace :db do
  task :migrate do
  end
end
`
	res, err := NewRubyExtractor().Extract(writeSource(t, "database.rake", code))
	require.NoError(t, err)

	tasks := tasksOf(res)
	require.Len(t, tasks, 1)
	assert.Equal(t, "db:migrate", tasks[0].QualifiedName)
}

func TestRakeDescBecomesDocstring(t *testing.T) {
	code := `desc 'Run database migrations'
task :migrate do
end
`
	res, err := NewRubyExtractor().Extract(writeSource(t, "db.rake", code))
	require.NoError(t, err)

	tasks := tasksOf(res)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Run database migrations", tasks[0].Docstring)
}

func TestRakeDeeplyNestedNamespaces(t *testing.T) {
	code := `namespace :deploy do
  namespace :assets do
    task :precompile do
    end
  end
end
`
	res, err := NewRubyExtractor().Extract(writeSource(t, "deploy.rake", code))
	require.NoError(t, err)

	tasks := tasksOf(res)
	require.Len(t, tasks, 1)
	assert.Equal(t, "deploy:assets:precompile", tasks[0].QualifiedName)
}

func TestRakefileExtractsTasks(t *testing.T) {
	code := `task :default do
  puts "Hello"
end
`
	res, err := NewRubyExtractor().Extract(writeSource(t, "Rakefile", code))
	require.NoError(t, err)

	tasks := tasksOf(res)
	require.Len(t, tasks, 1)
	assert.Equal(t, "default", tasks[0].SimpleName)
}

func TestGemfileDependencies(t *testing.T) {
	code := `source 'https://rubygems.org'

gem 'rails', '~> 7.0'
gem 'pg'
gem 'puma'
`
	res, err := NewRubyExtractor().Extract(writeSource(t, "Gemfile", code))
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(res.Imports), 3)
	names := map[string]bool{}
	for _, i := range res.Imports {
		names[i.SimpleName] = true
		assert.False(t, i.Detail.Import.IsRelative)
	}
	assert.True(t, names["rails"])
	assert.True(t, names["pg"])
	assert.True(t, names["puma"])
}

func TestRubyClassWithBase(t *testing.T) {
	code := `class User < ApplicationRecord
end
`
	res, err := NewRubyExtractor().Extract(writeSource(t, "user.rb", code))
	require.NoError(t, err)

	require.Len(t, res.Classes, 1)
	cls := res.Classes[0]
	assert.Equal(t, "User", cls.SimpleName)
	assert.Equal(t, []string{"ApplicationRecord"}, cls.Detail.Class.BaseClasses)

	refs := refsOfType(res, model.RelationExtends)
	require.Len(t, refs, 1)
	assert.Equal(t, "ApplicationRecord", refs[0].TargetQualifiedName)
}

func TestRubyIncludeIsMixin(t *testing.T) {
	code := `class Account < ApplicationRecord
  include Auditable
end
`
	res, err := NewRubyExtractor().Extract(writeSource(t, "account.rb", code))
	require.NoError(t, err)

	require.Len(t, res.Classes, 1)
	assert.Equal(t, []string{"Auditable"}, res.Classes[0].Detail.Class.Mixins)
}

func TestRubyRailsAssociations(t *testing.T) {
	code := `class Author < ApplicationRecord
  has_many :blog_posts
  belongs_to :publisher
  has_one :profile
end
`
	res, err := NewRubyExtractor().Extract(writeSource(t, "author.rb", code))
	require.NoError(t, err)

	targets := map[string]bool{}
	for _, r := range refsOfType(res, model.RelationReferences) {
		targets[r.TargetQualifiedName] = true
	}
	assert.True(t, targets["BlogPost"], "has_many singularizes and capitalizes")
	assert.True(t, targets["Publisher"])
	assert.True(t, targets["Profile"])
}

func TestRubyValidationsBecomeDecorators(t *testing.T) {
	code := `class User < ApplicationRecord
  validates :email, presence: true
  before_save :normalize
end
`
	res, err := NewRubyExtractor().Extract(writeSource(t, "user.rb", code))
	require.NoError(t, err)

	require.Len(t, res.Classes, 1)
	assert.Contains(t, res.Classes[0].Decorators, "validates")
	assert.Contains(t, res.Classes[0].Decorators, "before_save")
}

func TestRubyScopeIsStaticMethod(t *testing.T) {
	code := `class Post < ApplicationRecord
  scope :published, -> { where(published: true) }
end
`
	res, err := NewRubyExtractor().Extract(writeSource(t, "post.rb", code))
	require.NoError(t, err)

	require.Len(t, res.Methods, 1)
	m := res.Methods[0]
	assert.Equal(t, "published", m.SimpleName)
	assert.True(t, m.Detail.Method.IsStatic)
	assert.Equal(t, []string{"scope"}, m.Decorators)
}

func TestRubyDelegateEmitsCallsRefs(t *testing.T) {
	code := `class Order < ApplicationRecord
  delegate :name, :email, to: :customer
end
`
	res, err := NewRubyExtractor().Extract(writeSource(t, "order.rb", code))
	require.NoError(t, err)

	refs := refsOfType(res, model.RelationCalls)
	targets := map[string]string{}
	for _, r := range refs {
		targets[r.TargetQualifiedName] = r.ReceiverExpr
	}
	assert.Contains(t, targets, "customer.name")
	assert.Contains(t, targets, "customer.email")
	assert.Equal(t, "customer", targets["customer.name"])
}

func TestRubyMethodVisibility(t *testing.T) {
	code := `class Service
  def run
  end

  private

  def helper
  end
end
`
	res, err := NewRubyExtractor().Extract(writeSource(t, "service.rb", code))
	require.NoError(t, err)

	byName := map[string]*model.CodeEntity{}
	for _, m := range res.Methods {
		byName[m.SimpleName] = m
	}
	require.Contains(t, byName, "run")
	require.Contains(t, byName, "helper")
	assert.Equal(t, model.VisibilityPublic, byName["run"].Visibility)
	assert.Equal(t, model.VisibilityPrivate, byName["helper"].Visibility)
}

func TestRubySingularize(t *testing.T) {
	assert.Equal(t, "post", singularize("posts"))
	assert.Equal(t, "category", singularize("categories"))
	assert.Equal(t, "address", singularize("addresses"))
	assert.Equal(t, "profile", singularize("profiles"))
}

func TestRubyCamelize(t *testing.T) {
	assert.Equal(t, "BlogPost", camelize("blog_post"))
	assert.Equal(t, "User", camelize("user"))
}
